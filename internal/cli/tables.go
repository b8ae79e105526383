package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			db, dialect, err := openDB(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			tables, err := dialect.TableNames(ctx, db)
			if err != nil {
				return err
			}
			for _, t := range tables {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}
