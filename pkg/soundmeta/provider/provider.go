// Package provider implements the remote music-recognition services.
//
// Every lookup either returns a match or an error wrapping one of the
// sentinels below. Nothing here retries: resilience comes from the caller
// trying the next provider.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/himanishpuri/SoundMeta/pkg/models"
)

const (
	UnknownTitle  = "Unknown Track"
	UnknownArtist = "Unknown Artist"

	maxResponseBytes = 4 << 20
)

var (
	ErrDisabled          = errors.New("provider disabled: missing credential")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrRejected          = errors.New("provider rejected request")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrNoMatch           = errors.New("no match")
	ErrLowConfidence     = errors.New("match below confidence threshold")
	ErrPayloadTooLarge   = errors.New("payload exceeds provider upload limit")
)

// Query carries everything any provider may need. Fingerprint is nil for
// providers that do not ask for one.
type Query struct {
	Fingerprint *models.Fingerprint
	AudioPath   string
}

// Logger is the subset of pkg/logger used by providers.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Debugf(string, ...any) {}

// do executes req and returns the body of any non-5xx response. Transport
// failures, timeouts and 5xx statuses all map to ErrUnavailable.
func do(ctx context.Context, client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, body, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
