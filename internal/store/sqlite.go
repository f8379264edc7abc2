package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteHistory implements HistoryStore using SQLite.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (or creates) the transcript archive at dbPath.
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	h := &SQLiteHistory{db: db}
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return h, nil
}

var _ HistoryStore = (*SQLiteHistory)(nil)

func (h *SQLiteHistory) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS transcripts (
		session_id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		audio_bytes INTEGER NOT NULL,
		audio_duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`
	if _, err := h.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (h *SQLiteHistory) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Record stores a transcript, retrying briefly when the database is busy.
func (h *SQLiteHistory) Record(ctx context.Context, t domain.Transcript) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = h.recordOnce(ctx, t)
		if err == nil {
			return nil
		}
		if !isConflict(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Database locked while recording transcript, retrying",
			"session_id", t.SessionID,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("record transcript %s: %w", t.SessionID, err)
}

func (h *SQLiteHistory) recordOnce(ctx context.Context, t domain.Transcript) error {
	query := `
	INSERT INTO transcripts (session_id, text, audio_bytes, audio_duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		text = excluded.text,
		audio_bytes = excluded.audio_bytes,
		audio_duration_ms = excluded.audio_duration_ms`

	_, err := h.db.ExecContext(ctx, query,
		t.SessionID, t.Text, t.AudioBytes,
		t.AudioDuration.Milliseconds(), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Recent returns the newest transcripts first.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]domain.Transcript, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT session_id, text, audio_bytes, audio_duration_ms, created_at
		FROM transcripts ORDER BY created_at DESC LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	transcripts := make([]domain.Transcript, 0, limit)
	for rows.Next() {
		var t domain.Transcript
		var durationMs, createdAt int64
		if err := rows.Scan(&t.SessionID, &t.Text, &t.AudioBytes, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		t.AudioDuration = time.Duration(durationMs) * time.Millisecond
		t.CreatedAt = time.UnixMilli(createdAt)
		transcripts = append(transcripts, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}

	return transcripts, nil
}

// Close closes the database connection.
func (h *SQLiteHistory) Close() error {
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
