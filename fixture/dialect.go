package fixture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is the common interface for *sql.DB and *sql.Tx.
// Dialects run their queries through it and never own the connection.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Dialect abstracts what the loader needs from a database engine.
type Dialect interface {
	// Name returns the canonical dialect name accepted by DialectByName.
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes a table name for the dialect's own queries.
	QuoteIdent(name string) string

	// DatabaseName returns the name of the database q is connected to.
	DatabaseName(ctx context.Context, q Querier) (string, error)

	// TableNames lists the base tables (not views) of the active schema.
	TableNames(ctx context.Context, q Querier) ([]string, error)

	// TableChecksum returns an opaque fingerprint of the table's content.
	// Equal fingerprints mean the content did not change.
	TableChecksum(ctx context.Context, q Querier, table string) (string, error)

	// SetForeignKeyChecks suspends or restores referential integrity
	// enforcement for the transaction q.
	SetForeignKeyChecks(ctx context.Context, q Querier, enabled bool) error

	// BindParams renders the statement with the dialect's placeholders and
	// returns the driver arguments for its params.
	BindParams(stmt Statement) (string, []any)
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

// DialectByName returns the Dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// naiveLayout formats datetimes as wall-clock values without a zone, the
// storage convention of DATETIME / TIMESTAMP WITHOUT TIME ZONE columns.
const naiveLayout = "2006-01-02 15:04:05.999999"

func bindParams(d Dialect, stmt Statement) (string, []any) {
	args := make([]any, 0, len(stmt.Params))
	for _, p := range stmt.Params {
		switch p.Kind() {
		case KindDatetime:
			args = append(args, p.Time().Format(naiveLayout))
		default:
			args = append(args, p.Value())
		}
	}
	return stmt.Render(d.Placeholder), args
}

func queryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err //nolint:wrapcheck // callers wrap
		}
		out = append(out, s)
	}
	return out, rows.Err() //nolint:wrapcheck // callers wrap
}

func queryString(ctx context.Context, q Querier, query string) (string, error) {
	values, err := queryStrings(ctx, q, query)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", sql.ErrNoRows
	}
	return values[0], nil
}
