package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var ErrTranscode = errors.New("transcode failed")

// TranscodeConfig controls how a clip is shrunk for size-bounded providers.
type TranscodeConfig struct {
	FFmpegPath string
	SampleRate int     // output rate in Hz
	Channels   int     // output channels
	MaxSeconds float64 // clip is trimmed to this window
	Timeout    time.Duration
}

func DefaultTranscodeConfig() TranscodeConfig {
	return TranscodeConfig{
		FFmpegPath: "ffmpeg",
		SampleRate: 16000,
		Channels:   1,
		MaxSeconds: 12,
		Timeout:    30 * time.Second,
	}
}

// FFmpegTranscoder downmixes, resamples and trims audio with ffmpeg.
type FFmpegTranscoder struct {
	cfg TranscodeConfig
}

func NewFFmpegTranscoder(cfg TranscodeConfig) *FFmpegTranscoder {
	def := DefaultTranscodeConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = def.Channels
	}
	if cfg.MaxSeconds == 0 {
		cfg.MaxSeconds = def.MaxSeconds
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &FFmpegTranscoder{cfg: cfg}
}

// Args returns the ffmpeg argument list used for a conversion.
func (t *FFmpegTranscoder) Args(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-t", strconv.FormatFloat(t.cfg.MaxSeconds, 'f', 3, 64),
		"-ac", strconv.Itoa(t.cfg.Channels),
		"-ar", strconv.Itoa(t.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}
}

// Transcode writes a PCM WAV derivative of inputPath to outputPath. The caller
// owns outputPath and must remove it, including when an error is returned.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath, t.Args(inputPath, outputPath)...)
	cmd.WaitDelay = time.Second
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg did not finish: %v", ErrTranscode, ctx.Err())
		}
		return fmt.Errorf("%w: ffmpeg: %v (%s)", ErrTranscode, err, strings.TrimSpace(string(out)))
	}
	return nil
}
