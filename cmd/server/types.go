package main

import (
	"github.com/himanishpuri/SoundMeta/pkg/models"
)

const (
	// uploadFormField is the multipart field carrying the audio clip.
	uploadFormField = "audio"

	// MaxUploadBytes bounds the request body. Clips this large are still
	// admitted (with a warning) and trimmed before size-limited providers.
	MaxUploadBytes = 25 << 20

	// DefaultHistoryLimit is used when GET /api/history has no limit.
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// FileInfo echoes the uploaded file back to the client.
type FileInfo struct {
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// RecognizeResponse is the response for POST /recognize and /api/recognize
type RecognizeResponse struct {
	RequestID   string                   `json:"requestId"`
	Success     bool                     `json:"success"`
	Message     string                   `json:"message"`
	File        FileInfo                 `json:"file"`
	Recognition *models.RecognitionMatch `json:"recognition"`
	Source      *string                  `json:"source"`
	Error       *models.FailureReason    `json:"error,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

func newRecognizeResponse(file FileInfo, out models.PipelineOutcome) RecognizeResponse {
	return RecognizeResponse{
		RequestID:   out.RequestID,
		Success:     out.Success,
		Message:     out.Message,
		File:        file,
		Recognition: out.Recognition,
		Source:      out.Source,
		Error:       out.Error,
		Warnings:    out.Warnings,
	}
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Time      string           `json:"time"`
	Providers []ProviderHealth `json:"providers,omitempty"`
}

type ProviderHealth struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// HistoryResponse is the response for GET /api/history
type HistoryResponse struct {
	Entries []models.HistoryEntry `json:"entries"`
	Count   int                   `json:"count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
