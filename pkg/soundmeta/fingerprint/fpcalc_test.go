package fingerprint

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/SoundMeta/internal/testutil"
)

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	tool := testutil.Script(t, dir, "fpcalc", `echo '{"duration": 10.6, "fingerprint": "AQADtEmUaEkSRZEGAA"}'`)

	fp, err := (&Fpcalc{Path: tool}).Generate(context.Background(), "clip.wav")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if fp.Token != "AQADtEmUaEkSRZEGAA" {
		t.Errorf("Unexpected fingerprint %q", fp.Token)
	}
	if fp.Duration != 11 {
		t.Errorf("Expected rounded duration 11, got %d", fp.Duration)
	}
}

func TestGeneratePassesJSONFlagAndPath(t *testing.T) {
	dir := t.TempDir()
	tool := testutil.Script(t, dir, "fpcalc", `[ "$1" = "-json" ] || exit 3
printf '{"duration": 5, "fingerprint": "%s"}' "$2"`)

	fp, err := NewFpcalc(tool).Generate(context.Background(), "/tmp/upload.wav")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if fp.Token != "/tmp/upload.wav" {
		t.Errorf("Expected file path to be passed through, got %q", fp.Token)
	}
}

func TestGenerateErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		script string
		want   error
	}{
		{"non-zero exit", `echo "ERROR: Could not open the input file" >&2; exit 2`, ErrToolError},
		{"garbage output", `echo "DURATION=10"`, ErrToolError},
		{"missing fingerprint", `echo '{"duration": 10}'`, ErrIncompleteResult},
		{"missing duration", `echo '{"fingerprint": "AQAD"}'`, ErrIncompleteResult},
		{"zero duration", `echo '{"duration": 0.2, "fingerprint": "AQAD"}'`, ErrIncompleteResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := testutil.Script(t, dir, strings.ReplaceAll(tt.name, " ", "_"), tt.script)
			fp, err := (&Fpcalc{Path: tool}).Generate(context.Background(), "clip.wav")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if fp != nil {
				t.Errorf("Expected no fingerprint, got %+v", fp)
			}
		})
	}
}

func TestGenerateToolMissing(t *testing.T) {
	f := &Fpcalc{Path: filepath.Join(t.TempDir(), "fpcalc")}
	_, err := f.Generate(context.Background(), "clip.wav")
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("Expected ErrToolUnavailable, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	tool := testutil.Script(t, t.TempDir(), "fpcalc", "exec sleep 5")

	start := time.Now()
	_, err := (&Fpcalc{Path: tool, Timeout: 100 * time.Millisecond}).Generate(context.Background(), "clip.wav")
	if !errors.Is(err, ErrToolError) {
		t.Fatalf("Expected ErrToolError on timeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Timeout not enforced, took %v", time.Since(start))
	}
}

func TestNewFpcalcDefaults(t *testing.T) {
	f := NewFpcalc("")
	if f.Path != "fpcalc" || f.Timeout != DefaultTimeout {
		t.Errorf("Unexpected defaults: %+v", f)
	}
}
