// Package journal keeps an append-only audit log of reported bridge outcomes.
// The bridge only ever writes to it; nothing read from the journal influences
// how a later call is handled.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/cinema-bridge/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000

	// timeLayout is fixed-width so that created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one reported call.
type Entry struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	Method      string    `json:"method"`
	Strategy    string    `json:"strategy"`
	InputPath   string    `json:"input_path,omitempty"`
	Profile     string    `json:"profile,omitempty"`
	Channels    string    `json:"channels,omitempty"`
	Intensity   string    `json:"intensity,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	OK          bool      `json:"ok"`
	Kind        string    `json:"kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists entries in SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an already bootstrapped database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the journal database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e. A missing ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CallID == "" {
		return fmt.Errorf("call_id is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(
  id, call_id, method, strategy, input_path, profile, channels, intensity,
  fingerprint, ok, kind, detail, message, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.CallID, e.Method, e.Strategy, e.InputPath, e.Profile, e.Channels, e.Intensity,
		e.Fingerprint, e.OK, e.Kind, e.Detail, e.Message, e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, call_id, method, strategy, input_path, profile, channels, intensity,
       fingerprint, ok, kind, detail, message, created_at
FROM dispatch_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.Method, &e.Strategy, &e.InputPath, &e.Profile,
			&e.Channels, &e.Intensity, &e.Fingerprint, &e.OK, &e.Kind, &e.Detail, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_log;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return n, nil
}
