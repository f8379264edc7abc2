// Package mcpserver exposes the voice-to-text tool over the Model Context
// Protocol. A tool call opens a recording session, hands back a link for a
// human to record on, and blocks until the upload has been transcribed.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/voicemcp/internal/api"
	"github.com/ashureev/voicemcp/internal/metrics"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/ashureev/voicemcp/internal/sweeper"
	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName is reported in the initialize handshake.
	ServerName = "voicemcp"
	// ToolName is the only tool this server offers.
	ToolName = "voice-to-text"

	maxRequestBodySize = 1 << 20
)

// parseErrorBody is returned verbatim for request bodies that are not JSON.
var parseErrorBody = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`)

// LinkFunc builds the public recording link for a session id.
type LinkFunc func(sessionID string) string

// Config holds the wait loop timings and reported version.
type Config struct {
	Version      string
	PollInterval time.Duration
	WaitTimeout  time.Duration
	Metrics      *metrics.Metrics
}

// Server handles MCP JSON-RPC requests over HTTP.
type Server struct {
	mcp      *server.MCPServer
	sessions store.SessionStore
	sweeper  *sweeper.Sweeper
	waiter   *Waiter
	linkFor  LinkFunc
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// New creates a Server with the voice-to-text tool registered.
func New(sessions store.SessionStore, sw *sweeper.Sweeper, linkFor LinkFunc, cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		sessions: sessions,
		sweeper:  sw,
		waiter:   NewWaiter(sessions, cfg.PollInterval, cfg.WaitTimeout),
		linkFor:  linkFor,
		timeout:  cfg.WaitTimeout,
		metrics:  cfg.Metrics,
	}

	s.mcp = server.NewMCPServer(ServerName, cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(mcp.NewTool(ToolName,
		mcp.WithDescription("Ask the user to speak instead of type. Returns a link where the user records "+
			"their voice in the browser, waits for the recording, and returns the transcribed text."),
	), s.handleVoiceToText)

	return s
}

// RegisterRoutes registers the MCP endpoint behind the given middleware.
func (s *Server) RegisterRoutes(r chi.Router, middleware ...func(http.Handler) http.Handler) {
	r.With(middleware...).Post("/mcp", s.ServeHTTP)
}

// ServeHTTP decodes one JSON-RPC message and writes the reply. Notifications
// get 202 with no body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeParseError(w)
		return
	}

	if !json.Valid(raw) {
		slog.Warn("Malformed MCP request body", "bytes", len(raw))
		writeParseError(w)
		return
	}

	resp := s.mcp.HandleMessage(r.Context(), raw)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

func writeParseError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(parseErrorBody)
}

func (s *Server) handleVoiceToText(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.sweeper != nil {
		s.sweeper.Sweep()
	}

	session := s.sessions.Create()
	link := s.linkFor(session.ID)
	slog.Info("Voice recording requested", "session_id", session.ID, "link", link)

	outcome := s.waiter.Wait(ctx, session.ID)
	s.metrics.RecordToolCall(outcome.Kind.String(), outcome.Elapsed)
	return s.toolResult(outcome, link), nil
}

func (s *Server) toolResult(o Outcome, link string) *mcp.CallToolResult {
	switch o.Kind {
	case OutcomeCompleted:
		return mcp.NewToolResultText(o.Text)
	case OutcomeFailed:
		return mcp.NewToolResultError("Transcription failed: " + o.Text)
	case OutcomeExpired:
		return mcp.NewToolResultError("Recording session expired. Call " + ToolName + " again to start a new recording.")
	case OutcomeTimedOut:
		return mcp.NewToolResultText(fmt.Sprintf(
			"No recording was received within %s. Ask the user to open %s to record, then call %s again.",
			s.timeout, link, ToolName))
	default:
		return mcp.NewToolResultError("Recording cancelled: " + o.Text)
	}
}
