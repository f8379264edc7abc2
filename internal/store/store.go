// Package store provides session state and transcript persistence.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// SessionStore owns every live session. Callers only ever see snapshots;
// changes go through Update.
type SessionStore interface {
	// Create registers a new waiting session and returns its snapshot.
	Create() domain.Session

	// Get returns a snapshot of the session, or false if it is absent.
	Get(id string) (domain.Session, bool)

	// Update applies fn to the stored session atomically. If fn returns an
	// error the session is left untouched and the error is returned.
	Update(id string, fn func(*domain.Session) error) error

	// Delete removes the session. Deleting an absent session is a no-op.
	Delete(id string)

	// Sweep removes every session older than maxAge and returns how many were removed.
	Sweep(maxAge time.Duration) int

	// Len returns the number of live sessions.
	Len() int
}

// HistoryStore archives completed transcriptions.
type HistoryStore interface {
	// Record stores a completed transcript.
	Record(ctx context.Context, t domain.Transcript) error

	// Recent returns up to limit transcripts, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Transcript, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
