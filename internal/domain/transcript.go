package domain

import (
	"time"
)

// Transcript is an archived result of a completed session.
type Transcript struct {
	SessionID     string        `json:"session_id"`
	Text          string        `json:"text"`
	AudioBytes    int           `json:"audio_bytes"`
	AudioDuration time.Duration `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
}
