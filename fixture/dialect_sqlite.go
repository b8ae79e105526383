package fixture

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string { return "?" }
func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DatabaseName returns the file stem of the main database, so
// "/tmp/app_test.db" is named "app_test". In-memory databases have no name.
func (sqliteDialect) DatabaseName(ctx context.Context, q Querier) (string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return "", fmt.Errorf("testfixtures: database name: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "", fmt.Errorf("testfixtures: database name: %w", err)
		}
		if name != "main" {
			continue
		}
		if file.String == "" {
			return "", nil
		}
		base := filepath.Base(file.String)
		return strings.TrimSuffix(base, filepath.Ext(base)), nil
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("testfixtures: database name: %w", err)
	}
	return "", fmt.Errorf("testfixtures: database name: %w", sql.ErrNoRows)
}

func (sqliteDialect) TableNames(ctx context.Context, q Querier) ([]string, error) {
	names, err := queryStrings(ctx, q, `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("testfixtures: table names: %w", err)
	}
	return names, nil
}

// TableChecksum hashes every row with murmur3, sorts the row digests so the
// scan order does not matter, and hashes them together with the row count.
// Distinct contents collide with probability about 2^-128.
func (d sqliteDialect) TableChecksum(ctx context.Context, q Querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx, "SELECT * FROM "+d.QuoteIdent(table))
	if err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	var digests [][]byte
	var row bytes.Buffer
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
		}
		row.Reset()
		for _, v := range values {
			writeValue(&row, v)
		}
		h1, h2 := murmur3.Sum128(row.Bytes())
		digests = append(digests, binary.BigEndian.AppendUint64(binary.BigEndian.AppendUint64(nil, h1), h2))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("testfixtures: checksum %s: %w", table, err)
	}

	slices.SortFunc(digests, bytes.Compare)
	h := murmur3.New128()
	_ = binary.Write(h, binary.BigEndian, uint64(len(digests)))
	for _, digest := range digests {
		_, _ = h.Write(digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeValue appends a type-tagged, length-prefixed encoding of v.
func writeValue(buf *bytes.Buffer, v any) {
	var s string
	switch v := v.(type) {
	case nil:
		buf.WriteByte('n')
		return
	case []byte:
		buf.WriteByte('b')
		s = string(v)
	case time.Time:
		buf.WriteByte('t')
		s = v.UTC().Format(time.RFC3339Nano)
	default:
		fmt.Fprintf(buf, "%T", v)
		s = fmt.Sprint(v)
	}
	_ = binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

// SetForeignKeyChecks defers foreign key enforcement to COMMIT. SQLite
// ignores PRAGMA foreign_keys inside a transaction, and defer_foreign_keys
// resets itself when the transaction ends.
func (sqliteDialect) SetForeignKeyChecks(ctx context.Context, q Querier, enabled bool) error {
	stmt := "PRAGMA defer_foreign_keys = ON"
	if enabled {
		stmt = "PRAGMA defer_foreign_keys = OFF"
	}
	_, err := q.ExecContext(ctx, stmt)
	return err //nolint:wrapcheck // wrapped into ExecError by the loader
}

func (d sqliteDialect) BindParams(stmt Statement) (string, []any) { return bindParams(d, stmt) }
