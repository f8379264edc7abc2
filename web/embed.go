// Package web embeds the recorder page served to the human who answers a
// voice-to-text request.
package web

import (
	"embed"
	"html/template"
	"io"
	"net/url"
)

//go:embed recorder.html
var pageFS embed.FS

var recorderTmpl = template.Must(template.ParseFS(pageFS, "recorder.html"))

// RecorderPage is the data rendered into the recorder template.
type RecorderPage struct {
	SessionID string
	UploadURL string
	StatusURL string
	StreamURL string
}

// NewRecorderPage builds the page data for a session. URLs are relative to
// the serving host so the page works behind any public base URL.
func NewRecorderPage(sessionID string) RecorderPage {
	escaped := url.PathEscape(sessionID)
	return RecorderPage{
		SessionID: sessionID,
		UploadURL: "/upload/" + escaped,
		StatusURL: "/status/" + escaped,
		StreamURL: "/ws/status/" + escaped,
	}
}

// RenderRecorder writes the recorder page for p.
func RenderRecorder(w io.Writer, p RecorderPage) error {
	return recorderTmpl.Execute(w, p)
}
