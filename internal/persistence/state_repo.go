package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/skobkin/rilcore/internal/events"
)

// StateRecord is one journaled radio state transition.
type StateRecord struct {
	Radio string
	Power string
	At    time.Time
}

// CompletionRecord is one journaled token completion.
type CompletionRecord struct {
	Token  events.Token
	Result events.Result
	At     time.Time
}

// ChannelRecord is one journaled channel lifecycle change.
type ChannelRecord struct {
	Channel string
	State   string
	Err     string
	At      time.Time
}

type StateRepo struct {
	db *sql.DB
}

func NewStateRepo(db *sql.DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) InsertRadioState(ctx context.Context, s StateRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO radio_states(radio, power, at) VALUES (?, ?, ?)
	`, s.Radio, s.Power, toUnixMillis(s.At))
	if err != nil {
		return fmt.Errorf("insert radio state: %w", err)
	}

	return nil
}

// LastRadioState returns the most recent transition; ok is false on an empty journal.
func (r *StateRepo) LastRadioState(ctx context.Context) (StateRecord, bool, error) {
	var (
		s  StateRecord
		at int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT radio, power, at FROM radio_states ORDER BY id DESC LIMIT 1
	`).Scan(&s.Radio, &s.Power, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRecord{}, false, nil
	}
	if err != nil {
		return StateRecord{}, false, fmt.Errorf("query last radio state: %w", err)
	}
	s.At = fromUnixMillis(at)

	return s, true, nil
}

func (r *StateRepo) InsertCompletion(ctx context.Context, c CompletionRecord) error {
	// #nosec G115 -- tokens are stored bit for bit in a signed column.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO completions(token, result, at) VALUES (?, ?, ?)
	`, int64(c.Token), int(c.Result), toUnixMillis(c.At))
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}

	return nil
}

// ListCompletions returns up to limit completions, newest first.
func (r *StateRepo) ListCompletions(ctx context.Context, limit int) ([]CompletionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, result, at FROM completions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []CompletionRecord
	for rows.Next() {
		var (
			token  int64
			result int
			at     int64
		)
		if err := rows.Scan(&token, &result, &at); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, CompletionRecord{
			// #nosec G115 -- reverses the signed storage above.
			Token:  events.Token(token),
			Result: events.Result(result),
			At:     fromUnixMillis(at),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}

	return out, nil
}

func (r *StateRepo) InsertChannelEvent(ctx context.Context, c ChannelRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_events(channel, state, error, at) VALUES (?, ?, ?, ?)
	`, c.Channel, c.State, nullableString(c.Err), toUnixMillis(c.At))
	if err != nil {
		return fmt.Errorf("insert channel event: %w", err)
	}

	return nil
}

// ListChannelEvents returns up to limit channel events, newest first.
func (r *StateRepo) ListChannelEvents(ctx context.Context, limit int) ([]ChannelRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, state, error, at FROM channel_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list channel events: %w", err)
	}
	defer rows.Close()

	var out []ChannelRecord
	for rows.Next() {
		var (
			c      ChannelRecord
			errStr sql.NullString
			at     int64
		)
		if err := rows.Scan(&c.Channel, &c.State, &errStr, &at); err != nil {
			return nil, fmt.Errorf("scan channel event: %w", err)
		}
		c.Err = errStr.String
		c.At = fromUnixMillis(at)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel events: %w", err)
	}

	return out, nil
}
