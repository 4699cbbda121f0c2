// Package failures provides a diagnostic journal of listener failures.
//
// The bus writes one Record for every listener invocation that returned an
// error or panicked. The journal is for inspection only: the bus never reads
// it back and never redelivers events.
package failures

import (
	"context"
	"errors"
	"time"
)

// Record describes one failed listener invocation.
type Record struct {
	ListenerID string
	Listener   string
	EventType  string
	EventID    string
	Priority   int
	Variant    string
	Message    string
	Panicked   bool
	At         time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	EventType string
	Limit     int
}

// Store persists failure records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends a failure.
	Record(ctx context.Context, rec Record) error

	// List returns failures newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Count returns the number of stored failures.
	Count(ctx context.Context) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("failure store closed")
