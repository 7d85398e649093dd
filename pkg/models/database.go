package models

import "time"

// HistoryEntry is the stored record of one recognition request.
type HistoryEntry struct {
	RequestID    string    `json:"requestId"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"size"`
	Success      bool      `json:"success"`
	Source       string    `json:"source,omitempty"`
	Title        string    `json:"title,omitempty"`
	Artist       string    `json:"artist,omitempty"`
	Album        string    `json:"album,omitempty"`
	FailureKind  ErrorKind `json:"failureKind,omitempty"`
	FailureCode  string    `json:"failureCode,omitempty"`
	ProcessingMs int64     `json:"processingMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryStats summarises stored history.
type HistoryStats struct {
	Total     int64            `json:"total"`
	Succeeded int64            `json:"succeeded"`
	BySource  map[string]int64 `json:"bySource"`
}
