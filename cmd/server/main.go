// voicemcp - MCP server that lets an agent ask its user for spoken input.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/voicemcp/internal/api"
	"github.com/ashureev/voicemcp/internal/config"
	"github.com/ashureev/voicemcp/internal/mcpserver"
	"github.com/ashureev/voicemcp/internal/metrics"
	"github.com/ashureev/voicemcp/internal/middleware"
	"github.com/ashureev/voicemcp/internal/recording"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/ashureev/voicemcp/internal/stream"
	"github.com/ashureev/voicemcp/internal/sweeper"
	"github.com/ashureev/voicemcp/internal/transcribe"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "version", version)
	if cfg.Transcription.APIKey == "" {
		slog.Warn("ELEVENLABS_API_KEY is not set, uploads will fail until it is configured")
	}

	// Initialize dependencies.
	var history store.HistoryStore
	if cfg.HistoryDBPath != "" {
		h, err := store.NewSQLiteHistory(cfg.HistoryDBPath)
		if err != nil {
			slog.Error("Failed to initialize transcript history", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := h.Close(); closeErr != nil {
				slog.Error("Failed to close transcript history", "error", closeErr)
			}
		}()
		history = h
		slog.Info("Transcript history enabled", "path", cfg.HistoryDBPath)
	}

	sessions := store.NewMemoryStore()
	m := metrics.New("voicemcp", sessions.Len)
	sw := sweeper.New(sessions, cfg.Session.MaxAge, m)

	transcriber := transcribe.New(
		transcribe.WithAPIKey(cfg.Transcription.APIKey),
		transcribe.WithBaseURL(cfg.Transcription.BaseURL),
		transcribe.WithModel(cfg.Transcription.Model),
		transcribe.WithHTTPClient(&http.Client{Timeout: cfg.Transcription.Timeout}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize handlers.
	mcpHandler := mcpserver.New(sessions, sw, cfg.RecordingURL, mcpserver.Config{
		Version:      version,
		PollInterval: cfg.Session.PollInterval,
		WaitTimeout:  cfg.Session.WaitTimeout,
		Metrics:      m,
	})
	recordingHandler := recording.NewHandler(sessions, transcriber, recording.Config{
		MaxAudioBytes:     cfg.MaxAudioBytes,
		TranscribeTimeout: cfg.Transcription.Timeout,
		History:           history,
		Metrics:           m,
	})
	statusStream := stream.NewStatusHandler(sessions, cfg.Session.PollInterval)
	apiHandler := api.NewHandler(sessions, history)
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration, m)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	apiHandler.RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	mcpHandler.RegisterRoutes(r, limiter.Middleware)
	recordingHandler.RegisterRoutes(r, limiter.Middleware)
	statusStream.RegisterRoutes(r)

	// Create server.
	// Tool calls block for up to WAIT_TIMEOUT and the status stream is
	// long-lived, so there is no WriteTimeout. Request contexts derive from
	// ctx so pending waits end as soon as shutdown begins.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sw.Start(ctx, cfg.Session.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "mcp_endpoint", cfg.BaseURL+"/mcp")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully", "live_sessions", sessions.Len())
}
