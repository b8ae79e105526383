package fixture

import (
	"context"
	"database/sql"
	"fmt"
)

// transaction executes fn within a transaction on db.
// If fn returns nil the transaction is committed.
// If fn returns an error or panics the transaction is rolled back.
// A context that ends while fn runs makes database/sql roll back as well,
// so no exit path commits a partial load.
func transaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("testfixtures: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("testfixtures: commit: %w", err)
	}
	return nil
}
