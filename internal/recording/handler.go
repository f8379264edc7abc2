// Package recording serves the human side of a voice request: the recorder
// page, audio upload with transcription, and status polling.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/voicemcp/internal/api"
	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/metrics"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/ashureev/voicemcp/internal/transcribe"
	"github.com/ashureev/voicemcp/internal/wav"
	"github.com/ashureev/voicemcp/web"
	"github.com/go-chi/chi/v5"
)

// DemoSessionID is where the root path redirects.
const DemoSessionID = "demo"

var errAlreadyProcessed = errors.New("session already processed")

// Config tunes upload handling.
type Config struct {
	MaxAudioBytes     int64
	TranscribeTimeout time.Duration
	History           store.HistoryStore // nil disables archiving
	Metrics           *metrics.Metrics
}

// Handler serves the recorder page, uploads, and status.
type Handler struct {
	sessions    store.SessionStore
	transcriber transcribe.Transcriber
	cfg         Config
	now         func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(sessions store.SessionStore, transcriber transcribe.Transcriber, cfg Config) *Handler {
	return &Handler{
		sessions:    sessions,
		transcriber: transcriber,
		cfg:         cfg,
		now:         time.Now,
	}
}

// RegisterRoutes registers the recording routes. uploadMiddleware wraps only
// the upload endpoint.
func (h *Handler) RegisterRoutes(r chi.Router, uploadMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/", h.Root)
	r.Get("/record/{sessionId}", h.RecordPage)
	r.Get("/status/{sessionId}", h.Status)
	r.With(uploadMiddleware...).Post("/upload/{sessionId}", h.Upload)
}

// Root redirects to the demo recorder page.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/record/"+DemoSessionID, http.StatusFound)
}

// RecordPage renders the recorder for any session id. Unknown ids still get
// the page; the upload reports that the session is gone.
func (h *Handler) RecordPage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := web.RenderRecorder(w, web.NewRecorderPage(sessionID)); err != nil {
		slog.Error("Failed to render recorder page", "error", err, "session_id", sessionID)
	}
}

// Status returns a snapshot of the session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	s, ok := h.sessions.Get(sessionID)
	if !ok {
		api.Error(w, http.StatusNotFound, "Session not found")
		return
	}
	api.JSON(w, http.StatusOK, s.Snapshot())
}

// Upload accepts a WAV recording, transcribes it, and records the outcome on
// the session where the waiting tool call will find it.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	s, ok := h.sessions.Get(sessionID)
	if !ok {
		h.reject(w, http.StatusNotFound, "Session not found")
		return
	}
	if s.Status != domain.StatusWaiting {
		h.reject(w, http.StatusConflict, "Session already processed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxAudioBytes)
	audio, err := io.ReadAll(r.Body)
	if err != nil {
		status, msg := http.StatusBadRequest, "failed to read audio: "+err.Error()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status, msg = http.StatusRequestEntityTooLarge, fmt.Sprintf("audio exceeds %d bytes", maxErr.Limit)
		}
		h.fail(w, sessionID, status, msg)
		return
	}

	err = h.sessions.Update(sessionID, func(s *domain.Session) error {
		if s.Status != domain.StatusWaiting {
			return errAlreadyProcessed
		}
		return s.StartProcessing(audio)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.reject(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, errAlreadyProcessed):
		h.reject(w, http.StatusConflict, "Session already processed")
		return
	case err != nil:
		slog.Error("Failed to start processing", "error", err, "session_id", sessionID)
		h.reject(w, http.StatusInternalServerError, "failed to update session")
		return
	}

	header, err := wav.ParseHeader(audio)
	if err != nil {
		h.fail(w, sessionID, http.StatusBadRequest, "invalid audio: "+err.Error())
		return
	}

	slog.Info("Recording received",
		"session_id", sessionID,
		"bytes", len(audio),
		"sample_rate", header.SampleRate,
		"duration", header.Duration())

	// Transcription finishes even if the browser goes away; the tool call
	// is still waiting on the result.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.TranscribeTimeout)
	defer cancel()

	start := h.now()
	text, err := h.transcriber.Transcribe(ctx, audio)
	h.cfg.Metrics.RecordTranscription(len(audio), h.now().Sub(start))
	if err != nil {
		h.fail(w, sessionID, statusForTranscribeError(err), err.Error())
		return
	}

	if err := h.sessions.Update(sessionID, func(s *domain.Session) error {
		return s.Complete(text)
	}); err != nil {
		slog.Warn("Session changed during transcription", "error", err, "session_id", sessionID)
	}

	h.archive(ctx, domain.Transcript{
		SessionID:     sessionID,
		Text:          text,
		AudioBytes:    len(audio),
		AudioDuration: header.Duration(),
		CreatedAt:     h.now(),
	})

	slog.Info("Transcription completed", "session_id", sessionID, "chars", len(text))
	h.cfg.Metrics.RecordUpload(http.StatusOK)
	api.JSON(w, http.StatusOK, map[string]any{"success": true, "result": text})
}

// reject answers without touching the session.
func (h *Handler) reject(w http.ResponseWriter, status int, message string) {
	h.cfg.Metrics.RecordUpload(status)
	api.Error(w, status, message)
}

// fail moves the session to error and answers with the same message.
func (h *Handler) fail(w http.ResponseWriter, sessionID string, status int, message string) {
	if err := h.sessions.Update(sessionID, func(s *domain.Session) error {
		return s.Fail(message)
	}); err != nil {
		slog.Warn("Could not record session failure", "error", err, "session_id", sessionID)
	}
	slog.Error("Upload failed", "session_id", sessionID, "status", status, "error", message)
	h.reject(w, status, message)
}

func (h *Handler) archive(ctx context.Context, t domain.Transcript) {
	if h.cfg.History == nil {
		return
	}
	if err := h.cfg.History.Record(ctx, t); err != nil {
		slog.Error("Failed to archive transcript", "error", err, "session_id", t.SessionID)
	}
}

func statusForTranscribeError(err error) int {
	var cfgErr *transcribe.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
