// Package metrics holds the Prometheus instruments for the voice server.
// All Record methods are safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	// Tool call metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolWaitDuration *prometheus.HistogramVec

	// Upload and transcription metrics
	UploadsTotal          *prometheus.CounterVec
	AudioBytesTotal       prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// Session metrics
	SessionsSweptTotal prometheus.Counter

	// Rate limit metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry. liveSessions, if
// non-nil, is sampled on every scrape.
func New(namespace string, liveSessions func() int) *Metrics {
	if namespace == "" {
		namespace = "voicemcp"
	}

	registry := prometheus.NewRegistry()

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total voice-to-text tool calls by outcome",
		},
		[]string{"outcome"},
	)

	toolWaitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_wait_duration_seconds",
			Help:      "Time a tool call spent waiting for a recording",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"outcome"},
	)

	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total recording uploads by HTTP status",
		},
		[]string{"status"},
	)

	audioBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes accepted for transcription",
		},
	)

	transcriptionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Upstream transcription latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	sessionsSweptTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total sessions removed by expiry sweeps",
		},
	)

	rateLimitHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	registry.MustRegister(
		toolCallsTotal,
		toolWaitDuration,
		uploadsTotal,
		audioBytesTotal,
		transcriptionDuration,
		sessionsSweptTotal,
		rateLimitHits,
	)

	if liveSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live recording sessions",
			},
			func() float64 { return float64(liveSessions()) },
		))
	}

	return &Metrics{
		registry:              registry,
		ToolCallsTotal:        toolCallsTotal,
		ToolWaitDuration:      toolWaitDuration,
		UploadsTotal:          uploadsTotal,
		AudioBytesTotal:       audioBytesTotal,
		TranscriptionDuration: transcriptionDuration,
		SessionsSweptTotal:    sessionsSweptTotal,
		RateLimitHits:         rateLimitHits,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordToolCall records a finished tool call.
func (m *Metrics) RecordToolCall(outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(outcome).Inc()
	m.ToolWaitDuration.WithLabelValues(outcome).Observe(waited.Seconds())
}

// RecordUpload records an upload response status.
func (m *Metrics) RecordUpload(status int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(http.StatusText(status)).Inc()
}

// RecordTranscription records one upstream transcription attempt.
func (m *Metrics) RecordTranscription(audioBytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.Add(float64(audioBytes))
	m.TranscriptionDuration.Observe(duration.Seconds())
}

// RecordSweep records sessions removed by a sweep.
func (m *Metrics) RecordSweep(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.SessionsSweptTotal.Add(float64(removed))
}

// RecordRateLimitHit records a rejected request.
func (m *Metrics) RecordRateLimitHit(route string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(route).Inc()
}
