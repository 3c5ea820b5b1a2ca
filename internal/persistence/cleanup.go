package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

//goland:noinspection SqlWithoutWhere
var clearDatabaseStatements = []string{
	`DELETE FROM radio_states;`,
	`DELETE FROM completions;`,
	`DELETE FROM channel_events;`,
}

// ClearDatabase empties the journal, keeping the schema.
func ClearDatabase(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear database tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range clearDatabaseStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear database tables: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear database tx: %w", err)
	}

	return nil
}

// PruneBefore drops journal rows older than cutoff and returns how many were removed.
func PruneBefore(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"radio_states", "completions", "channel_events"} {
		// Table names come from the fixed list above.
		res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE at < ?`, toUnixMillis(cutoff))
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		total += n
	}

	return total, nil
}
