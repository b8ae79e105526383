package fixture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type postgresDialect struct{}

func (postgresDialect) Name() string                 { return "postgres" }
func (postgresDialect) Placeholder(index int) string { return "$" + strconv.Itoa(index) }
func (postgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) DatabaseName(ctx context.Context, q Querier) (string, error) {
	name, err := queryString(ctx, q, "SELECT current_database()")
	if err != nil {
		return "", fmt.Errorf("testfixtures: database name: %w", err)
	}
	return name, nil
}

func (postgresDialect) TableNames(ctx context.Context, q Querier) ([]string, error) {
	names, err := queryStrings(ctx, q, `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: table names: %w", err)
	}
	return names, nil
}

// TableChecksum hashes every row's text form in a stable order with md5.
// An empty table hashes the empty string.
func (d postgresDialect) TableChecksum(ctx context.Context, q Querier, table string) (string, error) {
	query := fmt.Sprintf(
		"SELECT md5(COALESCE(string_agg(t::text, E'\\n' ORDER BY t::text), '')) || ':' || count(*) FROM %s AS t",
		d.QuoteIdent(table),
	)
	sum, err := queryString(ctx, q, query)
	if err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}
	return sum, nil
}

// SetForeignKeyChecks switches session_replication_role for the current
// transaction only, which skips the triggers enforcing foreign keys.
// It requires a superuser or the replication role owner.
func (postgresDialect) SetForeignKeyChecks(ctx context.Context, q Querier, enabled bool) error {
	stmt := "SET LOCAL session_replication_role = replica"
	if enabled {
		stmt = "SET LOCAL session_replication_role = DEFAULT"
	}
	_, err := q.ExecContext(ctx, stmt)
	return err //nolint:wrapcheck // wrapped into ExecError by the loader
}

func (d postgresDialect) BindParams(stmt Statement) (string, []any) { return bindParams(d, stmt) }
