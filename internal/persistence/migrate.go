package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the schema version is the sqlite user_version.
var migrations = []string{
	`
	CREATE TABLE radio_states (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		radio TEXT NOT NULL,
		power TEXT NOT NULL,
		at    INTEGER NOT NULL
	);
	CREATE TABLE completions (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		token  INTEGER NOT NULL,
		result INTEGER NOT NULL,
		at     INTEGER NOT NULL
	);
	CREATE INDEX completions_token_idx ON completions(token);
	`,
	`
	CREATE TABLE channel_events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		state   TEXT NOT NULL,
		error   TEXT,
		at      INTEGER NOT NULL
	);
	`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if err := applyMigration(ctx, db, i+1, migrations[i]); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply migration %d: %w", version, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, version)); err != nil {
		return fmt.Errorf("bump schema version to %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}

	return nil
}
