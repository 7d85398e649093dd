package models

// UploadedAudio is one inbound clip, valid for a single request.
type UploadedAudio struct {
	Path     string // Absolute path on local ephemeral storage
	Filename string // Original filename as sent by the client
	MimeType string // Declared MIME type
	Size     int64  // Size in bytes
}

// Fingerprint is the output of the external fingerprinting tool.
type Fingerprint struct {
	Token    string // Provider-specific encoded fingerprint
	Duration int    // Clip duration in whole seconds
}

// Usable reports whether both fields are present.
func (f *Fingerprint) Usable() bool {
	return f != nil && f.Token != "" && f.Duration > 0
}

// RecognitionMatch is a normalized track, independent of the provider that produced it.
type RecognitionMatch struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	AlbumArt string `json:"albumArt"`
	Year     string `json:"year"`
	Source   string `json:"source"`
}

// ErrorKind classifies why a request did not produce a match.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_failure"
	KindProviderMiss        ErrorKind = "provider_miss"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindToolFailure         ErrorKind = "tool_failure"
	KindConfiguration       ErrorKind = "configuration_error"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// FailureReason is the structured part of an unsuccessful outcome.
type FailureReason struct {
	Kind   ErrorKind `json:"kind"`
	Code   string    `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

// PipelineOutcome is handed back to the request-handling layer.
// Success is true if and only if Recognition is non-nil.
type PipelineOutcome struct {
	RequestID   string            `json:"requestId"`
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Recognition *RecognitionMatch `json:"recognition"`
	Source      *string           `json:"source"`
	Error       *FailureReason    `json:"error,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Matched builds a successful outcome.
func Matched(requestID string, m *RecognitionMatch, warnings []string) PipelineOutcome {
	source := m.Source
	return PipelineOutcome{
		RequestID:   requestID,
		Success:     true,
		Message:     "Track recognized via " + m.Source,
		Recognition: m,
		Source:      &source,
		Warnings:    warnings,
	}
}

// Failed builds an unsuccessful outcome.
func Failed(requestID, message string, reason FailureReason, warnings []string) PipelineOutcome {
	return PipelineOutcome{
		RequestID: requestID,
		Success:   false,
		Message:   message,
		Error:     &reason,
		Warnings:  warnings,
	}
}
