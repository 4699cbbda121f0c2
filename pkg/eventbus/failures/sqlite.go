package failures

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore journals failures to SQLite.
// It is suitable for single-process use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) a failure journal.
// The path should be a file path or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS listener_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			listener_id TEXT NOT NULL,
			listener TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_id TEXT NOT NULL,
			priority INTEGER NOT NULL,
			variant TEXT NOT NULL,
			message TEXT NOT NULL,
			panicked INTEGER NOT NULL,
			at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listener_failures_event_type
		ON listener_failures(event_type)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listener_failures
			(listener_id, listener, event_type, event_id, priority, variant, message, panicked, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ListenerID, rec.Listener, rec.EventType, rec.EventID, rec.Priority,
		rec.Variant, rec.Message, rec.Panicked, rec.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`
		SELECT listener_id, listener, event_type, event_id, priority, variant, message, panicked, at
		FROM listener_failures`)
	if filter.EventType != "" {
		query.WriteString(" WHERE event_type = ?")
		args = append(args, filter.EventType)
	}
	query.WriteString(" ORDER BY id DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var at string
		if err := rows.Scan(&rec.ListenerID, &rec.Listener, &rec.EventType, &rec.EventID,
			&rec.Priority, &rec.Variant, &rec.Message, &rec.Panicked, &at); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		rec.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listener_failures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
