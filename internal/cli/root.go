// Package cli implements the testfixtures command.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/mickamy/testfixtures/fixture"
	"github.com/mickamy/testfixtures/internal/config"
)

type envKey struct{}

// env is what every subcommand receives from the root command.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func envFrom(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{cfg: &config.Config{}, logger: zerolog.Nop()}
}

// NewRootCmd returns the testfixtures command tree.
func NewRootCmd(version string) *cobra.Command {
	var cfgFile, envFile string

	root := &cobra.Command{
		Use:   "testfixtures",
		Short: "Load YAML test fixtures into MySQL, PostgreSQL or SQLite",
		Long: `testfixtures replaces the content of database tables with the records of
YAML fixture files. Each file is named after its table and holds a list of
records; values prefixed with RAW= are inserted as SQL expressions.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "version", "help", "completion", cobra.ShellCompRequestCmd:
				return nil
			}
			cfg, err := config.Load(config.Options{File: cfgFile, EnvFile: envFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			if cfg.File != "" {
				logger.Debug().Str("file", cfg.File).Msg("using config file")
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./testfixtures.yml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.String("dialect", "", "database dialect (mysql|postgres|sqlite)")
	flags.String("dsn", "", "data source name")
	flags.String("location", "", "time zone of fixture datetimes (default: UTC)")
	flags.StringSlice("files", nil, "fixture files, loaded in order")
	flags.String("directory", "", "directory scanned for .yml and .yaml fixtures")
	flags.StringSlice("paths", nil, "fixture files and directories")
	flags.Bool("drop-unsupported-values", false, "omit nested mappings and sequences instead of failing")
	flags.String("log-level", "", "log level (trace|debug|info|warn|error|disabled)")
	flags.String("log-format", "", "log format (console|json)")

	_ = root.RegisterFlagCompletionFunc("dialect", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"mysql", "postgres", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newLoadCommand())
	root.AddCommand(newCompileCommand())
	root.AddCommand(newTablesCommand())
	root.AddCommand(newVersionCommand(version))
	return root
}

// Execute runs the command with os.Args.
func Execute(ctx context.Context, version string) error {
	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	var logger zerolog.Logger
	if strings.EqualFold(format, "json") {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

// driverNames maps a dialect to the database/sql driver registered for it.
var driverNames = map[string]string{
	"mysql":    "mysql",
	"postgres": "pgx",
	"sqlite":   "sqlite",
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, fixture.Dialect, error) {
	if err := cfg.RequireDSN(); err != nil {
		return nil, nil, err
	}
	dialect, err := fixture.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(driverNames[dialect.Name()], cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect %s: %w", dialect.Name(), err)
	}
	return db, dialect, nil
}
