package fixture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string             { return "mysql" }
func (mysqlDialect) Placeholder(_ int) string { return "?" }
func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) DatabaseName(ctx context.Context, q Querier) (string, error) {
	name, err := queryString(ctx, q, "SELECT DATABASE()")
	if err != nil {
		return "", fmt.Errorf("testfixtures: database name: %w", err)
	}
	return name, nil
}

func (mysqlDialect) TableNames(ctx context.Context, q Querier) ([]string, error) {
	names, err := queryStrings(ctx, q, `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: table names: %w", err)
	}
	return names, nil
}

// TableChecksum uses CHECKSUM TABLE, a CRC32-based live checksum. MySQL
// reports NULL for tables that do not exist.
func (d mysqlDialect) TableChecksum(ctx context.Context, q Querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx, "CHECKSUM TABLE "+d.QuoteIdent(table))
	if err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
		}
		return "", fmt.Errorf("%w: %s", errNoChecksum, table)
	}
	var (
		name     string
		checksum sql.NullInt64
	)
	if err := rows.Scan(&name, &checksum); err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}
	if !checksum.Valid {
		return "", fmt.Errorf("%w: %s", errNoChecksum, table)
	}
	return fmt.Sprint(checksum.Int64), nil
}

func (mysqlDialect) SetForeignKeyChecks(ctx context.Context, q Querier, enabled bool) error {
	stmt := "SET FOREIGN_KEY_CHECKS = 0"
	if enabled {
		stmt = "SET FOREIGN_KEY_CHECKS = 1"
	}
	_, err := q.ExecContext(ctx, stmt)
	return err //nolint:wrapcheck // wrapped into ExecError by the loader
}

func (d mysqlDialect) BindParams(stmt Statement) (string, []any) { return bindParams(d, stmt) }
