// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/voicemcp/internal/transcribe"
)

// Config holds all application configuration.
type Config struct {
	Port     string
	BaseURL  string
	LogLevel slog.Level

	Transcription TranscriptionConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig

	MaxAudioBytes int64
	HistoryDBPath string // empty disables the transcript archive
}

// TranscriptionConfig configures the speech-to-text upstream.
type TranscriptionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// SessionConfig controls the wait loop and session expiry.
type SessionConfig struct {
	PollInterval  time.Duration
	WaitTimeout   time.Duration
	MaxAge        time.Duration
	SweepInterval time.Duration // 0 disables the background sweeper
}

// RateLimitConfig bounds uploads and tool calls per client IP.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "3000")

	cfg := &Config{
		Port:     port,
		BaseURL:  strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:"+port), "/"),
		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Transcription: TranscriptionConfig{
			APIKey:  getEnv(transcribe.APIKeyEnv, ""),
			BaseURL: getEnv("ELEVENLABS_BASE_URL", transcribe.DefaultBaseURL),
			Model:   getEnv("ELEVENLABS_MODEL", transcribe.DefaultModel),
			Timeout: getEnvDuration("TRANSCRIBE_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			PollInterval:  getEnvDuration("POLL_INTERVAL", 500*time.Millisecond),
			WaitTimeout:   getEnvDuration("WAIT_TIMEOUT", 60*time.Second),
			MaxAge:        getEnvDuration("SESSION_MAX_AGE", 5*time.Minute),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxAudioBytes: int64(getEnvInt("MAX_AUDIO_BYTES", 25<<20)),
		HistoryDBPath: getEnv("HISTORY_DB_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.Session.WaitTimeout < c.Session.PollInterval {
		return fmt.Errorf("WAIT_TIMEOUT must be >= POLL_INTERVAL")
	}
	if c.Session.MaxAge <= c.Session.WaitTimeout {
		return fmt.Errorf("SESSION_MAX_AGE must be > WAIT_TIMEOUT")
	}
	if c.Session.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL cannot be negative")
	}
	if c.Transcription.Timeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be > 0")
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// RecordingURL returns the public link for a session's recorder page.
func (c *Config) RecordingURL(sessionID string) string {
	return c.BaseURL + "/record/" + url.PathEscape(sessionID)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("750ms") or bare integers as milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
