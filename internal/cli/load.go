package cli

import (
	"github.com/spf13/cobra"

	"github.com/mickamy/testfixtures/fixture"
)

func newLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load fixtures into the database",
		Long: `Replace the content of every fixture table inside one transaction.

The target database name must contain "test" unless --skip-test-database-check
is set or --test-database-pattern selects another pattern.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			loc, err := e.cfg.TimeLocation()
			if err != nil {
				return err
			}
			pattern, err := e.cfg.Pattern()
			if err != nil {
				return err
			}

			db, dialect, err := openDB(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			loader, err := fixture.New(fixture.Config{
				DB:                    db,
				Dialect:               dialect,
				Location:              loc,
				Files:                 e.cfg.Files,
				Directory:             e.cfg.Directory,
				Paths:                 e.cfg.Paths,
				SkipTestDatabaseCheck: e.cfg.SkipTestDatabaseCheck,
				TestDatabasePattern:   pattern,
				// A single run has nothing to compare checksums with.
				SkipChangeDetection:   true,
				DropUnsupportedValues: e.cfg.DropUnsupportedValues,
				Logger:                &e.logger,
			})
			if err != nil {
				return err
			}
			return loader.Load(ctx)
		},
	}

	cmd.Flags().Bool("skip-test-database-check", false, "load even if the database name does not look like a test database")
	cmd.Flags().String("test-database-pattern", "", `regular expression test database names must match (default "(?i)test")`)
	return cmd
}
