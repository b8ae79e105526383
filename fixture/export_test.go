package fixture

import (
	"context"
	"database/sql"
)

// Checksums returns a copy of the checksums stored by the last successful
// Load. Exported for use in fixture_test package.
func (l *Loader) Checksums() map[string]string {
	out := make(map[string]string, len(l.detector.checksums))
	for k, v := range l.detector.checksums {
		out[k] = v
	}
	return out
}

// Parts exposes the placeholder split of a compiled statement.
func (s Statement) Parts() []string { return s.parts }

// RunInTransaction exposes transaction for tests of its rollback paths.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return transaction(ctx, db, fn)
}
