package soundmeta

import (
	"os"
	"os/exec"
	"time"

	"github.com/himanishpuri/SoundMeta/pkg/metrics"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/fingerprint"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/storage"
)

type Config struct {
	AcoustIDKey string
	AudDToken   string
	FpcalcPath  string
	FFmpegPath  string
	TempDir     string
	DBPath      string // empty disables history

	Admission          audio.AdmissionPolicy
	FingerprintTimeout time.Duration
	TranscodeTimeout   time.Duration
	AcoustIDTimeout    time.Duration
	AudDTimeout        time.Duration

	Logger        Logger
	Metrics       *metrics.Metrics
	Providers     []Provider
	Fingerprinter Fingerprinter
	Transcoder    Transcoder
	History       HistoryStore
}

type Option func(*Config)

func WithAcoustIDKey(key string) Option {
	return func(c *Config) {
		c.AcoustIDKey = key
	}
}

func WithAudDToken(token string) Option {
	return func(c *Config) {
		c.AudDToken = token
	}
}

func WithFpcalcPath(path string) Option {
	return func(c *Config) {
		c.FpcalcPath = path
	}
}

func WithFFmpegPath(path string) Option {
	return func(c *Config) {
		c.FFmpegPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithAdmissionPolicy(p audio.AdmissionPolicy) Option {
	return func(c *Config) {
		c.Admission = p
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithProviders replaces the default AcoustID then AudD chain. Order is the
// fallback order.
func WithProviders(p ...Provider) Option {
	return func(c *Config) {
		c.Providers = p
	}
}

func WithFingerprinter(f Fingerprinter) Option {
	return func(c *Config) {
		c.Fingerprinter = f
	}
}

func WithTranscoder(t Transcoder) Option {
	return func(c *Config) {
		c.Transcoder = t
	}
}

func WithHistory(h HistoryStore) Option {
	return func(c *Config) {
		c.History = h
	}
}

func defaultConfig() *Config {
	return &Config{
		FpcalcPath:         "fpcalc",
		FFmpegPath:         "ffmpeg",
		TempDir:            os.TempDir(),
		DBPath:             storage.DefaultDBFile,
		Admission:          audio.DefaultAdmissionPolicy(),
		FingerprintTimeout: fingerprint.DefaultTimeout,
		TranscodeTimeout:   30 * time.Second,
		AcoustIDTimeout:    20 * time.Second,
		AudDTimeout:        30 * time.Second,
	}
}

// Validate reports configuration problems that degrade the service without
// preventing it from starting.
func (c *Config) Validate() []string {
	var warnings []string
	if c.Providers == nil {
		if c.AcoustIDKey == "" {
			warnings = append(warnings, "ACOUSTID_API_KEY is not set, AcoustID lookups are disabled")
		}
		if c.AudDToken == "" {
			warnings = append(warnings, "AUDD_API_TOKEN is not set, AudD lookups are disabled")
		}
	}
	if c.Fingerprinter == nil {
		if _, err := exec.LookPath(c.FpcalcPath); err != nil {
			warnings = append(warnings, "fpcalc not found ("+c.FpcalcPath+"), fingerprint-based providers will be skipped")
		}
	}
	if c.Transcoder == nil {
		if _, err := exec.LookPath(c.FFmpegPath); err != nil {
			warnings = append(warnings, "ffmpeg not found ("+c.FFmpegPath+"), oversized clips cannot be sent to size-limited providers")
		}
	}
	return warnings
}
