// Package sweeper expires abandoned recording sessions.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/voicemcp/internal/metrics"
	"github.com/ashureev/voicemcp/internal/store"
)

// Sweeper removes sessions older than a fixed age. Sweep is called on every
// tool invocation; Start adds a timer so idle servers still expire sessions.
type Sweeper struct {
	sessions store.SessionStore
	maxAge   time.Duration
	metrics  *metrics.Metrics
}

// New creates a Sweeper. m may be nil.
func New(sessions store.SessionStore, maxAge time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{sessions: sessions, maxAge: maxAge, metrics: m}
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Sweeper) Sweep() int {
	removed := s.sessions.Sweep(s.maxAge)
	s.metrics.RecordSweep(removed)
	if removed > 0 {
		slog.Info("Expired sessions swept", "count", removed, "max_age", s.maxAge)
	}
	return removed
}

// Start runs Sweep every interval until ctx is done. A non-positive interval
// leaves only the call-triggered sweep.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Info("Session sweeper timer disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "max_age", s.maxAge)

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
