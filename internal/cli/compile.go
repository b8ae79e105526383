package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/testfixtures/fixture"
)

func newCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL generated for the fixtures",
		Long: `Compile every fixture file and print its statements with the dialect's
placeholders, followed by the bound arguments. No database is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd.Context())

			dialect, err := fixture.DialectByName(e.cfg.Dialect)
			if err != nil {
				return err
			}
			loc, err := e.cfg.TimeLocation()
			if err != nil {
				return err
			}
			paths, err := fixture.ResolvePaths(e.cfg.Files, e.cfg.Directory, e.cfg.Paths)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fixture.ErrNoFixtures
			}

			opts := fixture.CompileOptions{Location: loc, DropUnsupported: e.cfg.DropUnsupportedValues}
			for _, p := range paths {
				f, err := fixture.ReadFile(p, opts)
				if err != nil {
					return err
				}
				printFile(cmd.OutOrStdout(), dialect, f)
			}
			return nil
		},
	}
}

func printFile(w io.Writer, dialect fixture.Dialect, f *fixture.File) {
	_, _ = fmt.Fprintf(w, "-- %s (%s)\n", f.Path, f.Table)
	for _, stmt := range f.Statements() {
		query, _ := dialect.BindParams(stmt)
		if len(stmt.Params) == 0 {
			_, _ = fmt.Fprintf(w, "%s;\n", query)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s; -- %s\n", query, formatArgs(stmt.Params))
	}
}

func formatArgs(params []fixture.Param) string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.String()
	}
	return strings.Join(out, ", ")
}
