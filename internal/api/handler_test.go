//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/store"
)

type fakeHistory struct {
	items     []domain.Transcript
	pingErr   error
	lastLimit int
}

func (f *fakeHistory) Record(_ context.Context, t domain.Transcript) error {
	f.items = append(f.items, t)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]domain.Transcript, error) {
	f.lastLimit = limit
	if limit < len(f.items) {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *fakeHistory) Ping(context.Context) error { return f.pingErr }
func (f *fakeHistory) Close() error               { return nil }

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, "Session not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "Session not found" {
		t.Errorf("Unexpected error body %v", got)
	}
}

func TestHealth(t *testing.T) {
	sessions := store.NewMemoryStore()
	sessions.Create()
	sessions.Create()

	tests := []struct {
		name        string
		history     store.HistoryStore
		wantStatus  int
		wantHistory string
	}{
		{"history disabled", nil, http.StatusOK, "disabled"},
		{"history reachable", &fakeHistory{}, http.StatusOK, "ok"},
		{"history down", &fakeHistory{pingErr: errors.New("disk gone")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(sessions, tt.history)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, w.Code)
			}
			var got struct {
				Status string `json:"status"`
				Checks struct {
					Sessions int    `json:"sessions"`
					History  string `json:"history"`
				} `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got.Checks.Sessions != 2 {
				t.Errorf("Expected 2 sessions, got %d", got.Checks.Sessions)
			}
			if got.Checks.History != tt.wantHistory {
				t.Errorf("Expected history %q, got %q", tt.wantHistory, got.Checks.History)
			}
			if tt.wantStatus == http.StatusOK && got.Status != "healthy" {
				t.Errorf("Expected healthy, got %q", got.Status)
			}
		})
	}
}

func TestListTranscripts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{items: []domain.Transcript{
		{SessionID: "b", Text: "second", CreatedAt: now},
		{SessionID: "a", Text: "first", CreatedAt: now.Add(-time.Minute)},
	}}
	h := NewHandler(store.NewMemoryStore(), history)

	w := httptest.NewRecorder()
	h.ListTranscripts(w, httptest.NewRequest(http.MethodGet, "/api/transcripts?limit=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if history.lastLimit != 1 {
		t.Errorf("Expected limit 1 passed through, got %d", history.lastLimit)
	}
	var got struct {
		Transcripts []domain.Transcript `json:"transcripts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Transcripts) != 1 || got.Transcripts[0].Text != "second" {
		t.Errorf("Unexpected transcripts %+v", got.Transcripts)
	}
}

func TestListTranscriptsBadLimit(t *testing.T) {
	h := NewHandler(store.NewMemoryStore(), &fakeHistory{})

	for _, q := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		h.ListTranscripts(w, httptest.NewRequest(http.MethodGet, "/api/transcripts?limit="+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestListTranscriptsWithoutHistory(t *testing.T) {
	h := NewHandler(store.NewMemoryStore(), nil)

	w := httptest.NewRecorder()
	h.ListTranscripts(w, httptest.NewRequest(http.MethodGet, "/api/transcripts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "{\"transcripts\":[]}\n" {
		t.Errorf("Expected empty list, got %q", got)
	}
}
