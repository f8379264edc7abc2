// Package domain holds the core types shared across the service.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a recording session.
type Status string

const (
	// StatusWaiting means the session exists but no audio has arrived yet.
	StatusWaiting Status = "waiting"
	// StatusProcessing means audio was uploaded and transcription is running.
	StatusProcessing Status = "processing"
	// StatusCompleted means transcription succeeded and Result is set.
	StatusCompleted Status = "completed"
	// StatusError means the attempt failed and Error is set.
	StatusError Status = "error"
)

// ErrInvalidTransition is returned when a status change would move backwards
// or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid session status transition")

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// Session is one voice-capture attempt.
type Session struct {
	ID        string
	CreatedAt time.Time
	Status    Status
	Result    string
	Error     string
	AudioData []byte
}

// NewSession returns a session in the waiting state.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		CreatedAt: now,
		Status:    StatusWaiting,
	}
}

// Age returns how long the session has existed at the given instant.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Transition moves the session forward to next.
func (s *Session) Transition(next Status) error {
	if s.Status.IsTerminal() || next.rank() <= s.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// StartProcessing records the uploaded audio and moves to processing.
func (s *Session) StartProcessing(audio []byte) error {
	if err := s.Transition(StatusProcessing); err != nil {
		return err
	}
	s.AudioData = audio
	return nil
}

// Complete stores the transcription and moves to completed.
func (s *Session) Complete(text string) error {
	if err := s.Transition(StatusCompleted); err != nil {
		return err
	}
	s.Result = text
	s.AudioData = nil
	return nil
}

// Fail stores a human-readable failure and moves to error.
func (s *Session) Fail(message string) error {
	if err := s.Transition(StatusError); err != nil {
		return err
	}
	s.Error = message
	s.AudioData = nil
	return nil
}

// Snapshot is the public view of a session served to the recorder page.
type Snapshot struct {
	Status Status `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Snapshot returns the public view of s.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{Status: s.Status, Result: s.Result, Error: s.Error}
}
