package soundmeta

import (
	"context"

	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/provider"
)

type Service interface {
	// Recognize runs the full pipeline for one uploaded clip and always
	// deletes upload.Path before returning. The returned error is non-nil
	// only for internal defects; every other failure is described by the
	// outcome.
	Recognize(ctx context.Context, upload models.UploadedAudio) (models.PipelineOutcome, error)
	Check(path string) (*audio.Admission, error)
	Fingerprint(ctx context.Context, path string) (*models.Fingerprint, error)
	History(limit int) ([]models.HistoryEntry, error)
	HistoryEntry(requestID string) (*models.HistoryEntry, error)
	Stats() (*models.HistoryStats, error)
	Providers() []ProviderStatus
	Close() error
}

// Provider is a remote recognition backend.
type Provider interface {
	Name() string
	Enabled() bool
	NeedsFingerprint() bool
	MaxUploadBytes() int64 // 0 means unbounded
	Lookup(ctx context.Context, q provider.Query) (*models.RecognitionMatch, error)
}

type Fingerprinter interface {
	Generate(ctx context.Context, path string) (*models.Fingerprint, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

type HistoryStore interface {
	SaveRecognition(e models.HistoryEntry) error
	ListRecent(limit int) ([]models.HistoryEntry, error)
	GetByRequestID(requestID string) (*models.HistoryEntry, error)
	Stats() (*models.HistoryStats, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

type ProviderStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
