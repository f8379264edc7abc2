package mcpserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/store"
)

// OutcomeKind classifies how a wait ended.
type OutcomeKind int

const (
	// OutcomeCompleted means the transcription finished; Text holds it.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeFailed means the session ended in error; Text holds the message.
	OutcomeFailed
	// OutcomeExpired means the session disappeared before reaching a terminal state.
	OutcomeExpired
	// OutcomeTimedOut means no terminal state was observed before the ceiling.
	OutcomeTimedOut
	// OutcomeCancelled means the caller's context ended first.
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeExpired:
		return "expired"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of Waiter.Wait.
type Outcome struct {
	Kind    OutcomeKind
	Text    string
	Elapsed time.Duration
}

// Waiter polls the session store until a session reaches a terminal state or
// a fixed ceiling passes. The session is deleted on every exit path except
// expiry, where it is already gone.
type Waiter struct {
	sessions     store.SessionStore
	pollInterval time.Duration
	timeout      time.Duration
}

// NewWaiter creates a Waiter.
func NewWaiter(sessions store.SessionStore, pollInterval, timeout time.Duration) *Waiter {
	return &Waiter{
		sessions:     sessions,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Wait blocks the calling goroutine until the session with the given id
// settles. Between polls it parks on a timer, so other requests keep running.
func (w *Waiter) Wait(ctx context.Context, id string) Outcome {
	start := time.Now()
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	for {
		s, ok := w.sessions.Get(id)
		if !ok {
			return w.finish(id, start, OutcomeExpired, "", false)
		}

		switch s.Status {
		case domain.StatusCompleted:
			return w.finish(id, start, OutcomeCompleted, s.Result, true)
		case domain.StatusError:
			return w.finish(id, start, OutcomeFailed, s.Error, true)
		}

		if time.Since(start) >= w.timeout {
			return w.finish(id, start, OutcomeTimedOut, "", true)
		}

		select {
		case <-ctx.Done():
			return w.finish(id, start, OutcomeCancelled, ctx.Err().Error(), true)
		case <-timer.C:
			timer.Reset(w.pollInterval)
		}
	}
}

func (w *Waiter) finish(id string, start time.Time, kind OutcomeKind, text string, remove bool) Outcome {
	if remove {
		w.sessions.Delete(id)
	}
	elapsed := time.Since(start)
	slog.Info("Voice session settled", "session_id", id, "outcome", kind.String(), "elapsed", elapsed)
	return Outcome{Kind: kind, Text: text, Elapsed: elapsed}
}
