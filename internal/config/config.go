// Package config loads the settings of the testfixtures command.
//
// Values are layered, lowest precedence first: built-in defaults, the YAML
// config file, TESTFIXTURES_* environment variables (optionally read from a
// .env file), and command-line flags that were explicitly set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones for Location on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "TESTFIXTURES_"

// DefaultFiles are the config file names looked up in the working directory
// when no file is given explicitly.
var DefaultFiles = []string{"testfixtures.yml", "testfixtures.yaml"}

// ErrNoDSN is returned by RequireDSN.
var ErrNoDSN = errors.New("config: dsn is required")

// Config holds the command settings.
type Config struct {
	Dialect               string   `koanf:"dialect" validate:"required,oneof=mysql mariadb postgres postgresql pgx sqlite sqlite3"`
	DSN                   string   `koanf:"dsn"`
	Files                 []string `koanf:"files"`
	Directory             string   `koanf:"directory"`
	Paths                 []string `koanf:"paths"`
	Location              string   `koanf:"location" validate:"required"`
	SkipTestDatabaseCheck bool     `koanf:"skip_test_database_check"`
	TestDatabasePattern   string   `koanf:"test_database_pattern"`
	DropUnsupportedValues bool     `koanf:"drop_unsupported_values"`
	LogLevel              string   `koanf:"log_level" validate:"oneof=trace debug info warn error disabled"`
	LogFormat             string   `koanf:"log_format" validate:"oneof=console json"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{"files": true, "paths": true}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options selects where Load reads from.
type Options struct {
	// File is an explicit config file. It must exist when set.
	File string

	// EnvFile is a dotenv file loaded into the process environment before
	// the environment is read. A missing file is ignored.
	EnvFile string

	// Flags are the command-line flags; only flags that were set override.
	Flags *pflag.FlagSet
}

// Load reads, merges and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"location":   "UTC",
		"log_level":  "info",
		"log_format": "console",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	path, err := findFile(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", opts.EnvFile, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks field values, the location and the database pattern.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if _, err := c.Pattern(); err != nil {
		return err
	}
	return nil
}

// RequireDSN returns ErrNoDSN when no data source name is configured.
func (c *Config) RequireDSN() error {
	if c.DSN == "" {
		return ErrNoDSN
	}
	return nil
}

// TimeLocation resolves Location. "Local" and "UTC" are accepted as well as
// IANA zone names.
func (c *Config) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("config: location: %w", err)
	}
	return loc, nil
}

// Pattern compiles TestDatabasePattern. It returns nil when unset.
func (c *Config) Pattern() (*regexp.Regexp, error) {
	if c.TestDatabasePattern == "" {
		return nil, nil //nolint:nilnil // nil selects the default pattern
	}
	re, err := regexp.Compile(c.TestDatabasePattern)
	if err != nil {
		return nil, fmt.Errorf("config: test_database_pattern: %w", err)
	}
	return re, nil
}
