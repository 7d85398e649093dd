package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/himanishpuri/SoundMeta/pkg/logger"
	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/storage"
)

type fakeService struct {
	outcome  models.PipelineOutcome
	err      error
	history  []models.HistoryEntry
	histErr  error
	received *models.UploadedAudio
	content  []byte
}

func (f *fakeService) Recognize(ctx context.Context, up models.UploadedAudio) (models.PipelineOutcome, error) {
	f.received = &up
	f.content, _ = os.ReadFile(up.Path)
	os.Remove(up.Path)
	return f.outcome, f.err
}

func (f *fakeService) Check(path string) (*audio.Admission, error) { return nil, nil }

func (f *fakeService) Fingerprint(ctx context.Context, path string) (*models.Fingerprint, error) {
	return nil, nil
}

func (f *fakeService) History(limit int) ([]models.HistoryEntry, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeService) HistoryEntry(id string) (*models.HistoryEntry, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	for _, e := range f.history {
		if e.RequestID == id {
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeService) Stats() (*models.HistoryStats, error) {
	if f.histErr != nil {
		return nil, f.histErr
	}
	st := &models.HistoryStats{Total: int64(len(f.history)), BySource: map[string]int64{}}
	for _, e := range f.history {
		if e.Success {
			st.Succeeded++
			st.BySource[e.Source]++
		}
	}
	return st, nil
}

func (f *fakeService) Providers() []soundmeta.ProviderStatus {
	return []soundmeta.ProviderStatus{{Name: "AcoustID", Enabled: true}, {Name: "AudD", Enabled: false}}
}

func (f *fakeService) Close() error { return nil }

func newTestServer(t *testing.T, svc soundmeta.Service) http.Handler {
	t.Helper()
	s := NewServer(svc, &ServerConfig{TempDir: t.TempDir(), AllowedOrigins: []string{"*"}})
	s.log = logger.Nop()
	return s.setupRoutes()
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Service != serviceName || resp.Time == "" {
		t.Errorf("Unexpected health response %+v", resp)
	}
	if len(resp.Providers) != 2 {
		t.Errorf("Expected provider status, got %+v", resp.Providers)
	}
}

func TestHandleRecognizeSuccess(t *testing.T) {
	source := "AcoustID"
	svc := &fakeService{outcome: models.PipelineOutcome{
		RequestID:   "req-1",
		Success:     true,
		Message:     "Track recognized via AcoustID",
		Recognition: &models.RecognitionMatch{Title: "Test Song", Artist: "Test Artist", Source: source},
		Source:      &source,
	}}
	h := newTestServer(t, svc)

	for _, path := range []string{"/recognize", "/api/recognize"} {
		t.Run(path, func(t *testing.T) {
			body, ct := multipartBody(t, "audio", "clip.wav", []byte("RIFF-data"))
			req := httptest.NewRequest(http.MethodPost, path, body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp RecognizeResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if !resp.Success || resp.Recognition.Title != "Test Song" || *resp.Source != "AcoustID" {
				t.Errorf("Unexpected response %+v", resp)
			}
			if resp.File.OriginalName != "clip.wav" || resp.File.Size != int64(len("RIFF-data")) {
				t.Errorf("Unexpected file info %+v", resp.File)
			}
			if string(svc.content) != "RIFF-data" {
				t.Errorf("Service received %q", svc.content)
			}
		})
	}
}

func TestHandleRecognizeNoMatchSerializesNulls(t *testing.T) {
	svc := &fakeService{outcome: models.Failed("req-2", "No match found",
		models.FailureReason{Kind: models.KindProviderMiss, Code: "no_match"}, nil)}
	h := newTestServer(t, svc)

	body, ct := multipartBody(t, "audio", "clip.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/recognize", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("No match is not an HTTP error, got %d", rec.Code)
	}
	var raw map[string]any
	json.Unmarshal(rec.Body.Bytes(), &raw)
	for _, key := range []string{"recognition", "source"} {
		v, ok := raw[key]
		if !ok || v != nil {
			t.Errorf("Expected explicit null %s, got %v (present=%t)", key, v, ok)
		}
	}
	if raw["success"] != false {
		t.Errorf("Expected success=false, got %v", raw["success"])
	}
}

func TestHandleRecognizeStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		out  models.PipelineOutcome
		err  error
		want int
	}{
		{"validation", models.Failed("r", "Audio rejected", models.FailureReason{Kind: models.KindValidation, Code: "too_short"}, nil), nil, http.StatusUnprocessableEntity},
		{"internal", models.Failed("r", "Internal", models.FailureReason{Kind: models.KindInternal, Code: "internal"}, nil), errors.New("boom"), http.StatusInternalServerError},
		{"tool failure", models.Failed("r", "x", models.FailureReason{Kind: models.KindToolFailure, Code: "transcode_failed"}, nil), nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeService{outcome: tt.out, err: tt.err})
			body, ct := multipartBody(t, "audio", "clip.wav", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/recognize", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandleRecognizeMissingFile(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc)

	body, ct := multipartBody(t, "file", "clip.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/recognize", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if svc.received != nil {
		t.Error("Service should not be called without an audio field")
	}
}

func TestHandleRecognizeWrongMethod(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recognize", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	svc := &fakeService{history: []models.HistoryEntry{{RequestID: "a"}, {RequestID: "b"}, {RequestID: "c"}}}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp HistoryResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 2 || resp.Entries[0].RequestID != "a" {
		t.Errorf("Unexpected history %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestHandleHistoryDisabled(t *testing.T) {
	h := newTestServer(t, &fakeService{histErr: soundmeta.ErrHistoryDisabled})
	for _, path := range []string{"/api/history", "/api/history/abc", "/api/stats"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestHandleHistoryEntry(t *testing.T) {
	svc := &fakeService{history: []models.HistoryEntry{
		{RequestID: "abc", Success: true, Source: "AudD", Title: "Song"},
	}}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var entry models.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if entry.Title != "Song" || entry.Source != "AudD" {
		t.Errorf("Unexpected entry %+v", entry)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown id, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty id, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	svc := &fakeService{history: []models.HistoryEntry{
		{RequestID: "a", Success: true, Source: "AcoustID"},
		{RequestID: "b", Success: true, Source: "AudD"},
		{RequestID: "c", Success: false},
	}}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var st models.HistoryStats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if st.Total != 3 || st.Succeeded != 2 || st.BySource["AudD"] != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(&fakeService{}, &ServerConfig{TempDir: t.TempDir(), AllowedOrigins: []string{"https://app.example"}})
	s.log = logger.Nop()
	h := s.setupRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/recognize", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/recognize", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Unlisted origin must not be allowed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
