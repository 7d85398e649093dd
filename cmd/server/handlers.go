package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/himanishpuri/SoundMeta/pkg/logger"
	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/storage"
)

const serviceName = "SoundMeta Recognition Backend"

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service soundmeta.Service
	config  *ServerConfig
	log     soundmeta.Logger
	metrics http.Handler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	TempDir        string
	DBPath         string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service soundmeta.Service, config *ServerConfig) *Server {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 2 * time.Minute
	}
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().With("http"),
		metrics: promhttp.Handler(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"recognize":    "POST /recognize",
			"apiRecognize": "POST /api/recognize",
			"history":      "GET /api/history?limit=N",
			"historyEntry": "GET /api/history/{requestId}",
			"stats":        "GET /api/stats",
			"metrics":      "GET /metrics",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Service: serviceName,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, p := range s.service.Providers() {
		resp.Providers = append(resp.Providers, ProviderHealth{Name: p.Name, Enabled: p.Enabled})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleRecognize handles POST /recognize and POST /api/recognize (multipart field "audio")
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Use POST with a multipart 'audio' field")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "Upload exceeds 25 MiB")
			return
		}
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	upload, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	upload.Filename = header.Filename
	upload.MimeType = header.Header.Get("Content-Type")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	// the service owns upload.Path from here and deletes it
	out, err := s.service.Recognize(ctx, upload)
	if err != nil {
		s.log.Errorf("Recognition failed: %v", err)
	}

	info := FileInfo{OriginalName: header.Filename, MimeType: upload.MimeType, Size: upload.Size}
	s.respondJSON(w, statusFor(out, err), newRecognizeResponse(info, out))
}

// saveUpload copies the multipart file to a private temp file.
func (s *Server) saveUpload(src io.Reader, name string) (models.UploadedAudio, error) {
	if err := os.MkdirAll(s.config.TempDir, 0o755); err != nil {
		return models.UploadedAudio{}, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 8 {
		ext = ""
	}
	out, err := os.CreateTemp(s.config.TempDir, "upload-*"+ext)
	if err != nil {
		return models.UploadedAudio{}, err
	}

	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return models.UploadedAudio{}, err
	}
	return models.UploadedAudio{Path: out.Name(), Size: n}, nil
}

// statusFor maps an outcome to an HTTP status. A clean "no match" is still 200.
func statusFor(out models.PipelineOutcome, err error) int {
	if err != nil {
		return http.StatusInternalServerError
	}
	if out.Success || out.Error == nil {
		return http.StatusOK
	}
	switch out.Error.Kind {
	case models.KindValidation:
		return http.StatusUnprocessableEntity
	case models.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// handleHistory handles GET /api/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	entries, err := s.service.History(limit)
	if err != nil {
		s.log.Warnf("History unavailable: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "History is not available")
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	s.respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// handleHistoryEntry handles GET /api/history/{requestId}
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if requestID == "" || strings.Contains(requestID, "/") {
		s.respondError(w, http.StatusBadRequest, "request id is required")
		return
	}

	entry, err := s.service.HistoryEntry(requestID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "No recognition with that request id")
	case err != nil:
		s.log.Warnf("History unavailable: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "History is not available")
	default:
		s.respondJSON(w, http.StatusOK, entry)
	}
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	st, err := s.service.Stats()
	if err != nil {
		s.log.Warnf("Stats unavailable: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "History is not available")
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}
