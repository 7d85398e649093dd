package soundmeta

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/himanishpuri/SoundMeta/pkg/logger"
	"github.com/himanishpuri/SoundMeta/pkg/metrics"
	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/fingerprint"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/provider"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/storage"
	"github.com/himanishpuri/SoundMeta/pkg/utils"
)

// Pipeline stages, in order.
const (
	StageAdmitted    = "admitted"
	StageFingerprint = "fingerprinting"
	StagePrimary     = "primary_lookup"
	StageTranscode   = "transcode_for_secondary"
	StageSecondary   = "secondary_lookup"
	StageCompleted   = "completed"
)

const (
	outcomeMatched     = "matched"
	defaultHistorySize = 20
)

// recognitionService is the default implementation of the Service interface.
type recognitionService struct {
	providers     []Provider
	fingerprinter Fingerprinter
	transcoder    Transcoder
	history       HistoryStore
	metrics       *metrics.Metrics
	log           Logger
	config        *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	for _, w := range cfg.Validate() {
		cfg.Logger.Warnf("%s", w)
	}

	providers := cfg.Providers
	if providers == nil {
		providers = []Provider{
			provider.NewAcoustID(provider.AcoustIDConfig{
				APIKey:  cfg.AcoustIDKey,
				Timeout: cfg.AcoustIDTimeout,
				Logger:  cfg.Logger,
			}),
			provider.NewAudD(provider.AudDConfig{
				APIToken: cfg.AudDToken,
				Timeout:  cfg.AudDTimeout,
				Logger:   cfg.Logger,
			}),
		}
	}

	fp := cfg.Fingerprinter
	if fp == nil {
		fpcalc := fingerprint.NewFpcalc(cfg.FpcalcPath)
		if cfg.FingerprintTimeout > 0 {
			fpcalc.Timeout = cfg.FingerprintTimeout
		}
		fp = fpcalc
	}

	tr := cfg.Transcoder
	if tr == nil {
		tr = audio.NewFFmpegTranscoder(audio.TranscodeConfig{
			FFmpegPath: cfg.FFmpegPath,
			Timeout:    cfg.TranscodeTimeout,
		})
	}

	hist := cfg.History
	if hist == nil && cfg.DBPath != "" {
		db, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create history storage: %w", err)
		}
		hist = db
	}

	return &recognitionService{
		providers:     providers,
		fingerprinter: fp,
		transcoder:    tr,
		history:       hist,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		config:        cfg,
	}, nil
}

// request holds the state of one Recognize call. Nothing in it outlives the call.
type request struct {
	id       string
	upload   models.UploadedAudio
	scope    *utils.TempScope
	size     int64
	warnings []string
	stage    string

	fp     *models.Fingerprint
	fpErr  error
	fpDone bool

	derived     string
	derivedSize int64

	misses []attempt
}

type attempt struct {
	provider string
	rule     Rule
	err      error
}

func (r *request) tag() string {
	return r.id[:8]
}

func (s *recognitionService) Recognize(ctx context.Context, upload models.UploadedAudio) (out models.PipelineOutcome, err error) {
	req := &request{
		id:     uuid.NewString(),
		upload: upload,
		scope:  utils.NewTempScope(s.config.TempDir),
	}
	req.scope.Adopt(upload.Path)
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			stage := req.stage
			s.log.Errorf("[%s] panic during %s: %v\n%s", req.tag(), stage, rec, debug.Stack())
			out = s.fail(req, internalRule, fmt.Errorf("panic: %v", rec))
			err = fmt.Errorf("%w: panic during %s: %v", ErrInternal, stage, rec)
		}
		if relErr := req.scope.Release(); relErr != nil {
			s.log.Warnf("[%s] cleanup: %v", req.tag(), relErr)
		}
		s.finish(req, out, time.Since(started))
	}()

	s.log.Infof("[%s] recognizing %q (%s, %s)", req.tag(), upload.Filename, upload.MimeType,
		humanize.IBytes(uint64(max(upload.Size, 0))))

	if ctx.Err() != nil {
		return s.cancelled(ctx, req), nil
	}

	out, err = s.run(ctx, req)
	return out, err
}

func (s *recognitionService) run(ctx context.Context, req *request) (models.PipelineOutcome, error) {
	req.stage = StageAdmitted
	adm, err := s.admit(req)
	if err != nil {
		rule := Classify(err)
		if rule.Kind == models.KindInternal {
			return s.fail(req, rule, err), fmt.Errorf("%w: admission: %v", ErrInternal, err)
		}
		return s.fail(req, rule, err), nil
	}
	req.size = adm.SizeBytes
	s.metrics.ObserveAudio(adm.Duration)

	for i, p := range s.providers {
		if ctx.Err() != nil {
			return s.cancelled(ctx, req), nil
		}

		if !p.Enabled() {
			s.log.Debugf("[%s] %s disabled, skipping", req.tag(), p.Name())
			req.misses = append(req.misses, attempt{p.Name(), Classify(provider.ErrDisabled), provider.ErrDisabled})
			continue
		}

		q := provider.Query{AudioPath: req.upload.Path}

		if p.NeedsFingerprint() {
			fp, err := s.fingerprint(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return s.cancelled(ctx, req), nil
				}
				s.log.Warnf("[%s] skipping %s: %v", req.tag(), p.Name(), err)
				req.misses = append(req.misses, attempt{p.Name(), Classify(err), err})
				continue
			}
			q.Fingerprint = fp
		}

		if limit := p.MaxUploadBytes(); limit > 0 && req.size > limit {
			path, err := s.shrink(ctx, req, limit)
			if err != nil {
				if ctx.Err() != nil {
					return s.cancelled(ctx, req), nil
				}
				s.log.Errorf("[%s] cannot prepare audio for %s: %v", req.tag(), p.Name(), err)
				return s.fail(req, Classify(err), err), nil
			}
			q.AudioPath = path
		}

		if ctx.Err() != nil {
			return s.cancelled(ctx, req), nil
		}

		req.stage = StagePrimary
		if i > 0 {
			req.stage = StageSecondary
		}
		match, err := s.lookup(ctx, req, p, q)
		if err == nil {
			req.stage = StageCompleted
			return models.Matched(req.id, match, req.warnings), nil
		}

		if ctx.Err() != nil {
			return s.cancelled(ctx, req), nil
		}
		rule := classifyLookup(err)
		if rule.Decision == FailRequest {
			return s.fail(req, rule, err), nil
		}
		s.log.Infof("[%s] %s: %v", req.tag(), p.Name(), err)
		req.misses = append(req.misses, attempt{p.Name(), rule, err})
	}

	return s.exhausted(req), nil
}

func (s *recognitionService) admit(req *request) (*audio.Admission, error) {
	defer s.metrics.StageTimer(StageAdmitted)()

	adm, err := audio.CheckAdmission(req.upload.Path, s.config.Admission)
	if adm != nil {
		req.warnings = append(req.warnings, adm.Warnings...)
		for _, w := range adm.Warnings {
			s.log.Warnf("[%s] %s", req.tag(), w)
		}
	}
	if err != nil {
		s.log.Warnf("[%s] admission rejected: %v", req.tag(), err)
		return adm, err
	}
	s.log.Debugf("[%s] admitted: %dch %dHz %d-bit %.2fs", req.tag(),
		adm.Channels, adm.SampleRate, adm.BitsPerSample, adm.Duration)
	return adm, nil
}

// fingerprint runs the fingerprinter at most once per request. A panicking
// fingerprinter counts as a tool error.
func (s *recognitionService) fingerprint(ctx context.Context, req *request) (*models.Fingerprint, error) {
	if req.fpDone {
		return req.fp, req.fpErr
	}
	req.stage = StageFingerprint
	defer s.metrics.StageTimer(StageFingerprint)()

	req.fp, req.fpErr = s.generate(ctx, req)
	if req.fpErr == nil && !req.fp.Usable() {
		req.fp, req.fpErr = nil, fingerprint.ErrIncompleteResult
	}
	req.fpDone = true
	return req.fp, req.fpErr
}

func (s *recognitionService) generate(ctx context.Context, req *request) (fp *models.Fingerprint, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("[%s] fingerprinter panicked: %v", req.tag(), rec)
			fp, err = nil, fmt.Errorf("%w: panic: %v", fingerprint.ErrToolError, rec)
		}
	}()
	return s.fingerprinter.Generate(ctx, req.upload.Path)
}

// shrink returns a scope-owned derivative of the upload no larger than limit.
func (s *recognitionService) shrink(ctx context.Context, req *request, limit int64) (string, error) {
	if req.derived != "" {
		if req.derivedSize > limit {
			return "", fmt.Errorf("%w: %s > %s", ErrTranscodeOversize,
				humanize.IBytes(uint64(req.derivedSize)), humanize.IBytes(uint64(limit)))
		}
		return req.derived, nil
	}

	req.stage = StageTranscode
	defer s.metrics.StageTimer(StageTranscode)()

	out, err := req.scope.NewPath(".wav")
	if err != nil {
		return "", fmt.Errorf("%w: allocating output: %v", audio.ErrTranscode, err)
	}
	s.log.Infof("[%s] %s exceeds %s, transcoding", req.tag(),
		humanize.IBytes(uint64(req.size)), humanize.IBytes(uint64(limit)))

	if err := s.transcode(ctx, req, out); err != nil {
		if errors.Is(err, audio.ErrTranscode) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", audio.ErrTranscode, err)
	}

	size, err := utils.FileSize(out)
	if err != nil {
		return "", fmt.Errorf("%w: no output: %v", audio.ErrTranscode, err)
	}
	req.derived, req.derivedSize = out, size
	if size > limit {
		return "", fmt.Errorf("%w: %s > %s", ErrTranscodeOversize,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
	}
	s.log.Debugf("[%s] transcoded to %s", req.tag(), humanize.IBytes(uint64(size)))
	return out, nil
}

func (s *recognitionService) transcode(ctx context.Context, req *request, out string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("[%s] transcoder panicked: %v", req.tag(), rec)
			err = fmt.Errorf("%w: panic: %v", audio.ErrTranscode, rec)
		}
	}()
	return s.transcoder.Transcode(ctx, req.upload.Path, out)
}

// lookup calls the provider, turning a nil match or a panic into an error.
func (s *recognitionService) lookup(ctx context.Context, req *request, p Provider, q provider.Query) (match *models.RecognitionMatch, err error) {
	defer s.metrics.StageTimer(req.stage)()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("[%s] %s panicked: %v", req.tag(), p.Name(), rec)
			match, err = nil, fmt.Errorf("%w: %s: %v", errProviderPanic, p.Name(), rec)
		}
		result := outcomeMatched
		if err != nil {
			result = classifyLookup(err).Code
		}
		s.metrics.ObserveLookup(p.Name(), result)
	}()

	match, err = p.Lookup(ctx, q)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, provider.ErrNoMatch
	}
	return normalizeMatch(match, p.Name()), nil
}

// normalizeMatch fills the fields every successful outcome must carry.
func normalizeMatch(m *models.RecognitionMatch, source string) *models.RecognitionMatch {
	out := *m
	if strings.TrimSpace(out.Title) == "" {
		out.Title = provider.UnknownTitle
	}
	if strings.TrimSpace(out.Artist) == "" {
		out.Artist = provider.UnknownArtist
	}
	if out.Source == "" {
		out.Source = source
	}
	return &out
}

func (s *recognitionService) fail(req *request, rule Rule, err error) models.PipelineOutcome {
	req.stage = StageCompleted
	return models.Failed(req.id, failureMessage(rule, err), rule.reason(err), req.warnings)
}

func (s *recognitionService) cancelled(ctx context.Context, req *request) models.PipelineOutcome {
	s.log.Warnf("[%s] cancelled during %s", req.tag(), req.stage)
	return s.fail(req, Classify(ctx.Err()), ctx.Err())
}

// exhausted builds the outcome when every provider was tried without a match.
// A miss outranks an outage, which outranks a tool failure or a disabled provider.
func (s *recognitionService) exhausted(req *request) models.PipelineOutcome {
	req.stage = StageCompleted

	rank := map[models.ErrorKind]int{
		models.KindProviderMiss:        4,
		models.KindProviderUnavailable: 3,
		models.KindToolFailure:         2,
		models.KindConfiguration:       1,
	}
	best := Rule{Kind: models.KindConfiguration, Code: "no_providers"}
	details := make([]string, 0, len(req.misses))
	for _, a := range req.misses {
		if rank[a.rule.Kind] > rank[best.Kind] || best.Code == "no_providers" {
			best = a.rule
		}
		details = append(details, fmt.Sprintf("%s: %s", a.provider, a.rule.Code))
	}

	reason := models.FailureReason{Kind: best.Kind, Code: best.Code, Detail: strings.Join(details, "; ")}
	if best.Kind == models.KindProviderMiss {
		reason.Code = "no_match"
	}
	return models.Failed(req.id, failureMessage(best, nil), reason, req.warnings)
}

func failureMessage(rule Rule, err error) string {
	switch rule.Kind {
	case models.KindValidation:
		if err != nil {
			return "Audio rejected: " + err.Error()
		}
		return "Audio rejected"
	case models.KindProviderMiss:
		return "No match found"
	case models.KindProviderUnavailable:
		return "Recognition services are unavailable"
	case models.KindToolFailure:
		return "Audio could not be processed"
	case models.KindConfiguration:
		return "No recognition provider is configured"
	case models.KindCancelled:
		return "Request cancelled"
	default:
		return "Internal error during recognition"
	}
}

// finish records metrics and history. It never changes the outcome.
func (s *recognitionService) finish(req *request, out models.PipelineOutcome, elapsed time.Duration) {
	label, source := string(models.KindInternal), ""
	if out.Success && out.Recognition != nil {
		label = outcomeMatched
		source = out.Recognition.Source
		s.log.Infof("[%s] matched %q by %q via %s in %s", req.tag(),
			out.Recognition.Title, out.Recognition.Artist, source, elapsed.Round(time.Millisecond))
	} else {
		if out.Error != nil {
			label = string(out.Error.Kind)
		}
		s.log.Infof("[%s] no match (%s) in %s", req.tag(), label, elapsed.Round(time.Millisecond))
	}
	s.metrics.ObserveRequest(label, source)

	if s.history == nil {
		return
	}
	entry := models.HistoryEntry{
		RequestID:    req.id,
		Filename:     req.upload.Filename,
		MimeType:     req.upload.MimeType,
		SizeBytes:    req.upload.Size,
		Success:      out.Success,
		ProcessingMs: elapsed.Milliseconds(),
		CreatedAt:    time.Now(),
	}
	if out.Recognition != nil {
		entry.Source = out.Recognition.Source
		entry.Title = out.Recognition.Title
		entry.Artist = out.Recognition.Artist
		entry.Album = out.Recognition.Album
	}
	if out.Error != nil {
		entry.FailureKind = out.Error.Kind
		entry.FailureCode = out.Error.Code
	}
	if err := s.history.SaveRecognition(entry); err != nil {
		s.log.Warnf("[%s] saving history: %v", req.tag(), err)
	}
}

func (s *recognitionService) Check(path string) (*audio.Admission, error) {
	return audio.CheckAdmission(path, s.config.Admission)
}

func (s *recognitionService) Fingerprint(ctx context.Context, path string) (*models.Fingerprint, error) {
	return s.fingerprinter.Generate(ctx, path)
}

func (s *recognitionService) History(limit int) ([]models.HistoryEntry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = defaultHistorySize
	}
	return s.history.ListRecent(limit)
}

func (s *recognitionService) HistoryEntry(requestID string) (*models.HistoryEntry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.GetByRequestID(requestID)
}

func (s *recognitionService) Stats() (*models.HistoryStats, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Stats()
}

func (s *recognitionService) Providers() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, ProviderStatus{Name: p.Name(), Enabled: p.Enabled()})
	}
	return out
}

func (s *recognitionService) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}
