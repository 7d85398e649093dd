package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/SoundMeta/pkg/models"
)

const (
	AcoustIDName            = "AcoustID"
	DefaultAcoustIDEndpoint = "https://api.acoustid.org/v2/lookup"
	DefaultMinScore         = 0.5
	coverArtTemplate        = "https://coverartarchive.org/release-group/%s/front-500"
)

type AcoustIDConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	MinScore float64
	Client   *http.Client
	Logger   Logger
}

// AcoustID looks tracks up by Chromaprint fingerprint.
type AcoustID struct {
	cfg    AcoustIDConfig
	client *http.Client
	log    Logger
}

func NewAcoustID(cfg AcoustIDConfig) *AcoustID {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAcoustIDEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	var log Logger = nopLogger{}
	if cfg.Logger != nil {
		log = cfg.Logger
	}
	return &AcoustID{cfg: cfg, client: client, log: log}
}

func (a *AcoustID) Name() string           { return AcoustIDName }
func (a *AcoustID) Enabled() bool          { return a.cfg.APIKey != "" }
func (a *AcoustID) NeedsFingerprint() bool { return true }
func (a *AcoustID) MaxUploadBytes() int64  { return 0 }

type acoustIDResponse struct {
	Status string `json:"status"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Results []acoustIDResult `json:"results"`
}

type acoustIDResult struct {
	ID         string              `json:"id"`
	Score      float64             `json:"score"`
	Recordings []acoustIDRecording `json:"recordings"`
}

type acoustIDRecording struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
	ReleaseGroups []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"releasegroups"`
}

func (a *AcoustID) Lookup(ctx context.Context, q Query) (*models.RecognitionMatch, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	if !q.Fingerprint.Usable() {
		return nil, fmt.Errorf("%w: fingerprint required", ErrRejected)
	}

	form := url.Values{}
	form.Set("client", a.cfg.APIKey)
	form.Set("fingerprint", q.Fingerprint.Token)
	form.Set("duration", strconv.Itoa(q.Fingerprint.Duration))
	form.Set("meta", "recordings releasegroups artists")

	req, err := http.NewRequest(http.MethodPost, a.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	a.log.Debugf("[%s] lookup duration=%ds", AcoustIDName, q.Fingerprint.Duration)
	status, body, err := do(ctx, a.client, req)
	if err != nil {
		return nil, err
	}

	var resp acoustIDResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: HTTP %d: %v", ErrMalformedResponse, status, err)
	}
	if resp.Status != "ok" {
		msg := resp.Status
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	best, ok := selectBest(resp.Results)
	if !ok {
		return nil, fmt.Errorf("%w: empty result list", ErrNoMatch)
	}
	if best.Score < a.cfg.MinScore {
		return nil, fmt.Errorf("%w: score %.2f < %.2f", ErrLowConfidence, best.Score, a.cfg.MinScore)
	}
	if len(best.Recordings) == 0 {
		return nil, fmt.Errorf("%w: result %s has no recordings", ErrNoMatch, best.ID)
	}

	match := recordingToMatch(best.Recordings[0])
	a.log.Infof("[%s] matched %q by %q (score %.2f)", AcoustIDName, match.Title, match.Artist, best.Score)
	return match, nil
}

// selectBest returns the first result carrying the highest score.
func selectBest(results []acoustIDResult) (acoustIDResult, bool) {
	if len(results) == 0 {
		return acoustIDResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return best, true
}

func recordingToMatch(rec acoustIDRecording) *models.RecognitionMatch {
	names := make([]string, 0, len(rec.Artists))
	for _, a := range rec.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	m := &models.RecognitionMatch{
		Title:  orDefault(rec.Title, UnknownTitle),
		Artist: orDefault(strings.Join(names, ", "), UnknownArtist),
		Source: AcoustIDName,
	}
	if len(rec.ReleaseGroups) > 0 {
		rg := rec.ReleaseGroups[0]
		m.Album = rg.Title
		if rg.ID != "" {
			m.AlbumArt = fmt.Sprintf(coverArtTemplate, rg.ID)
		}
	}
	return m
}
