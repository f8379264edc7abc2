package transcribe

import (
	"fmt"
)

// ConfigurationError reports a missing or unusable setting. Nothing is sent
// upstream when it is returned.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Key)
}

// UpstreamError reports a failed or malformed response from the speech-to-text
// service. StatusCode is zero when the call succeeded at the HTTP level but the
// body could not be used.
type UpstreamError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription API error: %d - %s", e.StatusCode, e.Body)
	}
	return "transcription API error: " + e.Message
}
