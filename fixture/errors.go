package fixture

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Configuration errors. New reports them before any database I/O.
var (
	ErrNoDatabase = errors.New("testfixtures: database is required")
	ErrNoDialect  = errors.New("testfixtures: dialect is required")
	ErrNoLocation = errors.New("testfixtures: location is required")
	ErrNoFixtures = errors.New("testfixtures: no fixture files found")
)

// ErrUnknownDialect is returned by DialectByName.
var ErrUnknownDialect = errors.New("testfixtures: unknown dialect")

// Compile errors. Compile and New wrap them with the prefixed file path.
var (
	ErrNotList          = errors.New("fixture file must contain a list of records")
	ErrNotMapping       = errors.New("fixture record must be a mapping")
	ErrUnsupportedValue = errors.New("unsupported fixture value")
	ErrEmptyRecord      = errors.New("fixture record has no columns")
)

// ErrNotTestDatabase is returned by Load when the target database name does
// not match the test database pattern.
var ErrNotTestDatabase = errors.New("testfixtures: refusing to load fixtures into a database that does not look like a test database")

var errNoChecksum = errors.New("testfixtures: table checksum unavailable")

// ExecError is returned by Load when a statement fails or the connection
// becomes unusable while deciding which tables to reload. File and SQL are
// empty when no fixture statement was running. Any transaction has been
// rolled back by the time it is returned.
type ExecError struct {
	File string
	SQL  string
	Err  error
}

// Error returns the driver message unmodified after the package prefix.
func (e *ExecError) Error() string {
	msg := e.Err.Error()
	if strings.HasPrefix(msg, "testfixtures: ") {
		return msg
	}
	return "testfixtures: " + msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// connUnusable reports whether err means the connection itself cannot be
// used, as opposed to a failed query.
func connUnusable(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
