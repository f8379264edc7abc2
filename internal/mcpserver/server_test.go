package mcpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/voicemcp/internal/domain"
	"github.com/ashureev/voicemcp/internal/metrics"
	"github.com/ashureev/voicemcp/internal/store"
	"github.com/ashureev/voicemcp/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  struct {
		ProtocolVersion string                     `json:"protocolVersion"`
		Capabilities    map[string]json.RawMessage `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	srv      *Server
	sessions *store.MemoryStore
	metrics  *metrics.Metrics
	ids      chan string
}

func newHarness(poll, timeout time.Duration) *harness {
	sessions := store.NewMemoryStore()
	ids := make(chan string, 4)
	link := func(id string) string {
		ids <- id
		return "http://localhost:3000/record/" + id
	}
	m := metrics.New("test", sessions.Len)
	srv := New(sessions, sweeper.New(sessions, 5*time.Minute, m), link, Config{
		Version:      "test",
		PollInterval: poll,
		WaitTimeout:  timeout,
		Metrics:      m,
	})
	return &harness{srv: srv, sessions: sessions, metrics: m, ids: ids}
}

func (h *harness) post(t *testing.T, body string) (*httptest.ResponseRecorder, rpcResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)

	var resp rpcResponse
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, resp
}

const callTool = `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"voice-to-text","arguments":{}}}`

func TestInitializeHandshake(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	rr, resp := h.post(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp.Result.ServerInfo.Name != ServerName {
		t.Errorf("expected server name %q, got %q", ServerName, resp.Result.ServerInfo.Name)
	}
	if _, ok := resp.Result.Capabilities["tools"]; !ok {
		t.Error("expected tools capability")
	}
	if string(resp.ID) != "1" {
		t.Errorf("expected id echoed, got %s", resp.ID)
	}
}

func TestNotificationIsAccepted(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	rr, _ := h.post(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
}

func TestToolsList(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	_, resp := h.post(t, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if len(resp.Result.Tools) != 1 || resp.Result.Tools[0].Name != ToolName {
		t.Fatalf("expected only %s, got %+v", ToolName, resp.Result.Tools)
	}
	if resp.Result.Tools[0].Description == "" {
		t.Error("expected tool description")
	}
}

func TestToolCallReturnsTranscript(t *testing.T) {
	h := newHarness(10*time.Millisecond, 5*time.Second)

	go func() {
		id := <-h.ids
		time.Sleep(20 * time.Millisecond)
		_ = h.sessions.Update(id, func(s *domain.Session) error {
			if err := s.StartProcessing([]byte("RIFF")); err != nil {
				return err
			}
			return s.Complete("hello world")
		})
	}()

	_, resp := h.post(t, callTool)
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp.Result.IsError {
		t.Fatalf("expected success result, got %+v", resp.Result.Content)
	}
	if len(resp.Result.Content) != 1 || resp.Result.Content[0].Text != "hello world" {
		t.Fatalf("unexpected content %+v", resp.Result.Content)
	}
	if h.sessions.Len() != 0 {
		t.Error("expected session removed after result")
	}
	if got := testutil.ToFloat64(h.metrics.ToolCallsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected one completed tool call recorded, got %v", got)
	}
}

func TestToolCallReportsTranscriptionFailure(t *testing.T) {
	h := newHarness(10*time.Millisecond, 5*time.Second)

	go func() {
		id := <-h.ids
		_ = h.sessions.Update(id, func(s *domain.Session) error {
			return s.Fail("transcription API error: 500 - upstream down")
		})
	}()

	_, resp := h.post(t, callTool)
	if !resp.Result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resp.Result.Content[0].Text, "500 - upstream down") {
		t.Errorf("expected upstream message, got %q", resp.Result.Content[0].Text)
	}
	if h.sessions.Len() != 0 {
		t.Error("expected session removed after failure")
	}
}

func TestToolCallReportsExpiredSession(t *testing.T) {
	h := newHarness(10*time.Millisecond, 5*time.Second)

	go func() {
		id := <-h.ids
		h.sessions.Delete(id)
	}()

	_, resp := h.post(t, callTool)
	if !resp.Result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resp.Result.Content[0].Text, "expired") {
		t.Errorf("expected expiry message, got %q", resp.Result.Content[0].Text)
	}
}

func TestToolCallTimesOutWithLink(t *testing.T) {
	h := newHarness(20*time.Millisecond, 100*time.Millisecond)

	start := time.Now()
	_, resp := h.post(t, callTool)
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Errorf("returned before ceiling: %s", elapsed)
	}
	if resp.Result.IsError {
		t.Fatal("expected a non-error result on timeout")
	}
	id := <-h.ids
	if !strings.Contains(resp.Result.Content[0].Text, "/record/"+id) {
		t.Errorf("expected recording link in %q", resp.Result.Content[0].Text)
	}
	if h.sessions.Len() != 0 {
		t.Error("expected session removed after timeout")
	}
}

func TestToolCallSweepsStaleSessions(t *testing.T) {
	sessions := store.NewMemoryStore()
	stale := sessions.Create()

	ids := make(chan string, 1)
	srv := New(sessions, sweeper.New(sessions, 0, nil), func(id string) string {
		ids <- id
		return "/record/" + id
	}, Config{PollInterval: 10 * time.Millisecond, WaitTimeout: 30 * time.Millisecond})

	time.Sleep(5 * time.Millisecond)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(callTool)))

	if _, ok := sessions.Get(stale.ID); ok {
		t.Error("expected stale session to be swept by tool call")
	}
}

func TestUnknownToolAndMethod(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	tests := []struct {
		name string
		body string
	}{
		{"unknown tool", `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope","arguments":{}}}`},
		{"unknown method", `{"jsonrpc":"2.0","id":4,"method":"does/not/exist"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := h.post(t, tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			if resp.Error == nil {
				t.Fatal("expected JSON-RPC error")
			}
			if resp.Error.Code >= 0 {
				t.Errorf("expected negative error code, got %d", resp.Error.Code)
			}
		})
	}
	if h.sessions.Len() != 0 {
		t.Error("unknown requests must not create sessions")
	}
}

func TestMalformedBodyReturnsParseError(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	rr, resp := h.post(t, `{"jsonrpc": "2.0", "id":`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Errorf("expected null id, got %s", resp.ID)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	h := newHarness(10*time.Millisecond, time.Second)

	body := bytes.Repeat([]byte(" "), maxRequestBodySize+1)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}
