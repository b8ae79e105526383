package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mickamy/testfixtures/internal/naming"
)

// DefaultTestDatabasePattern matches database names that look like test
// databases: any name containing "test", case-insensitively.
var DefaultTestDatabasePattern = regexp.MustCompile(`(?i)test`)

// Config configures a Loader. DB, Dialect and Location are required, and at
// least one of Files, Directory and Paths must name a fixture file.
type Config struct {
	// DB is the connection pool. The Loader borrows one connection per Load
	// and never closes the pool.
	DB *sql.DB `validate:"required"`

	Dialect Dialect `validate:"required"`

	// Location is used for every datetime string in the fixtures.
	Location *time.Location `validate:"required"`

	// Files are fixture files loaded in the given order.
	Files []string

	// Directory is scanned non-recursively for .yml and .yaml files.
	Directory string

	// Paths mixes files and directories.
	Paths []string

	// SkipTestDatabaseCheck disables the database name check done before
	// every load.
	SkipTestDatabaseCheck bool

	// TestDatabasePattern overrides DefaultTestDatabasePattern.
	TestDatabasePattern *regexp.Regexp

	// SkipChangeDetection reloads every table on every load instead of
	// skipping tables whose checksum did not change.
	SkipChangeDetection bool

	// DropUnsupportedValues omits columns holding nested mappings or
	// sequences instead of failing with ErrUnsupportedValue.
	DropUnsupportedValues bool

	// Logger receives debug logs for every statement and skipped table.
	// Defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Loader loads fixture files into a test database.
//
// A Loader is created once per test suite and Load may be called before
// every test. Load calls must not run concurrently on the same Loader.
type Loader struct {
	db        *sql.DB
	dialect   Dialect
	files     []*File
	pattern   *regexp.Regexp
	checkName bool
	detect    bool
	detector  *changeDetector
	logger    *zerolog.Logger
}

// Dialects are empty structs, so "required" must only reject nil here;
// WithRequiredStructEnabled would reject them as zero values.
var validate = validator.New()

// New validates cfg, reads and compiles every fixture file, and returns a
// Loader. It does not touch the database.
func New(cfg Config) (*Loader, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	paths, err := ResolvePaths(cfg.Files, cfg.Directory, cfg.Paths)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoFixtures
	}

	opts := CompileOptions{Location: cfg.Location, DropUnsupported: cfg.DropUnsupportedValues}
	files := make([]*File, 0, len(paths))
	for _, p := range paths {
		f, err := ReadFile(p, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	pattern := cfg.TestDatabasePattern
	if pattern == nil {
		pattern = DefaultTestDatabasePattern
	}

	return &Loader{
		db:        cfg.DB,
		dialect:   cfg.Dialect,
		files:     files,
		pattern:   pattern,
		checkName: !cfg.SkipTestDatabaseCheck,
		detect:    !cfg.SkipChangeDetection,
		detector:  newChangeDetector(cfg.Dialect, logger),
		logger:    logger,
	}, nil
}

func validateConfig(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("testfixtures: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		switch e.StructField() {
		case "DB":
			errs = append(errs, ErrNoDatabase)
		case "Dialect":
			errs = append(errs, ErrNoDialect)
		case "Location":
			errs = append(errs, ErrNoLocation)
		default:
			errs = append(errs, fmt.Errorf("testfixtures: %s: %s", e.Field(), e.Tag()))
		}
	}
	return errors.Join(errs...)
}

// ResolvePaths expands files, directory and paths, in that order, into
// fixture file paths, the way New does. Directory entries are sorted by name
// and subdirectories are not descended into.
func ResolvePaths(files []string, directory string, paths []string) ([]string, error) {
	out := make([]string, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, fmt.Errorf("testfixtures: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("testfixtures: %s is a directory", f)
		}
		out = append(out, f)
	}

	if directory != "" {
		found, err := scanDirectory(directory)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("testfixtures: %w", err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		found, err := scanDirectory(p)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func scanDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !naming.IsFixtureFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Files returns the compiled fixture files in load order.
func (l *Loader) Files() []*File {
	return l.files
}

// Load replaces the content of every fixture table inside one transaction.
//
// Unless the check is skipped, the database name must match the test
// database pattern first. Tables whose checksum has not changed since the
// previous Load are left alone, unless reloading another table modified
// them (ON DELETE CASCADE, triggers). Any failing statement rolls the whole
// load back and is returned as an *ExecError.
func (l *Loader) Load(ctx context.Context) error {
	if l.checkName {
		if err := l.ensureTestDatabase(ctx); err != nil {
			return err
		}
	}

	files := l.files
	var skipped []*File
	if l.detect {
		var err error
		files, err = l.detector.changed(ctx, l.db, l.files)
		if err != nil {
			return &ExecError{Err: err}
		}
		skipped = without(l.files, files)
	}
	if len(files) == 0 {
		l.logger.Debug().Msg("all fixture tables unchanged")
		return nil
	}

	var loaded []*File
	if err := transaction(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		loaded, err = l.apply(ctx, tx, files, skipped)
		return err
	}); err != nil {
		var execErr *ExecError
		if !errors.As(err, &execErr) {
			// Begin or commit failed; the outcome is unknown.
			l.detector.forget()
		}
		return err
	}

	if l.detect {
		l.detector.record(ctx, l.db, loaded)
	}
	l.logger.Info().Int("tables", len(loaded)).Int("skipped", len(l.files)-len(loaded)).Msg("fixtures loaded")
	return nil
}

// without returns the files of all that are not in some, in order.
func without(all, some []*File) []*File {
	var out []*File
	for _, f := range all {
		if !slices.Contains(some, f) {
			out = append(out, f)
		}
	}
	return out
}

func (l *Loader) ensureTestDatabase(ctx context.Context) error {
	name, err := l.dialect.DatabaseName(ctx, l.db)
	if err != nil {
		return err
	}
	if !l.pattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrNotTestDatabase, name)
	}
	return nil
}

// apply runs files, then reloads every skipped file whose table was
// modified as a side effect, until none is. It returns all files it ran.
func (l *Loader) apply(ctx context.Context, tx *sql.Tx, files, skipped []*File) (loaded []*File, err error) {
	if err := l.dialect.SetForeignKeyChecks(ctx, tx, false); err != nil {
		return nil, &ExecError{Err: err}
	}
	defer func() {
		if err != nil {
			// Session-level settings such as MySQL's FOREIGN_KEY_CHECKS
			// survive a rollback on the pooled connection.
			_ = l.dialect.SetForeignKeyChecks(ctx, tx, true)
		}
	}()

	for _, f := range files {
		if err := l.exec(ctx, tx, f); err != nil {
			return nil, err
		}
	}
	loaded = slices.Clone(files)

	for len(skipped) > 0 {
		var stale []*File
		stale, skipped, err = l.detector.stale(ctx, tx, skipped)
		if err != nil {
			return nil, &ExecError{Err: err}
		}
		if len(stale) == 0 {
			break
		}
		for _, f := range stale {
			l.logger.Debug().Str("table", f.Table).Msg("reloading table modified during load")
			if err := l.exec(ctx, tx, f); err != nil {
				return nil, err
			}
		}
		loaded = append(loaded, stale...)
	}

	if err := l.dialect.SetForeignKeyChecks(ctx, tx, true); err != nil {
		return nil, &ExecError{Err: err}
	}
	return loaded, nil
}

func (l *Loader) exec(ctx context.Context, tx *sql.Tx, f *File) error {
	for _, stmt := range f.Statements() {
		query, args := l.dialect.BindParams(stmt)
		l.logger.Debug().Str("file", f.Path).Str("sql", query).Interface("args", args).Msg("exec")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return &ExecError{File: f.Path, SQL: query, Err: err}
		}
	}
	return nil
}
