// Package fingerprint wraps the Chromaprint fpcalc command-line tool.
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/himanishpuri/SoundMeta/pkg/models"
)

var (
	ErrToolUnavailable  = errors.New("fingerprint tool unavailable")
	ErrToolError        = errors.New("fingerprint tool failed")
	ErrIncompleteResult = errors.New("fingerprint result incomplete")
)

const DefaultTimeout = 20 * time.Second

// Fpcalc runs `fpcalc -json <file>` and parses its output.
type Fpcalc struct {
	Path    string
	Timeout time.Duration
}

func NewFpcalc(path string) *Fpcalc {
	if path == "" {
		path = "fpcalc"
	}
	return &Fpcalc{Path: path, Timeout: DefaultTimeout}
}

type fpcalcOutput struct {
	Duration    *float64 `json:"duration"`
	Fingerprint string   `json:"fingerprint"`
}

// Generate fingerprints the file at path. Errors wrap one of ErrToolUnavailable,
// ErrToolError or ErrIncompleteResult.
func (f *Fpcalc) Generate(ctx context.Context, path string) (*models.Fingerprint, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, "-json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s did not finish: %v", ErrToolError, f.Path, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrToolError, err, strings.TrimSpace(stderr.String()))
	}

	return parseOutput(stdout.Bytes())
}

func parseOutput(raw []byte) (*models.Fingerprint, error) {
	var out fpcalcOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: unparseable output: %v", ErrToolError, err)
	}

	fp := &models.Fingerprint{Token: out.Fingerprint}
	if out.Duration != nil {
		fp.Duration = int(math.Round(*out.Duration))
	}
	if !fp.Usable() {
		return nil, fmt.Errorf("%w: fingerprint=%t duration=%d", ErrIncompleteResult, fp.Token != "", fp.Duration)
	}
	return fp, nil
}
