package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"

	"github.com/himanishpuri/SoundMeta/pkg/models"
)

const (
	AudDName            = "AudD"
	DefaultAudDEndpoint = "https://api.audd.io/"
	AudDMaxUploadBytes  = 1 << 20
	audDLowConfidence   = 60 * 1024
	appleArtworkSize    = "300"
)

type AudDConfig struct {
	APIToken string
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
	Logger   Logger
}

// AudD submits the raw audio file for recognition. Uploads are capped at
// AudDMaxUploadBytes.
type AudD struct {
	cfg    AudDConfig
	client *http.Client
	log    Logger
}

func NewAudD(cfg AudDConfig) *AudD {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAudDEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	var log Logger = nopLogger{}
	if cfg.Logger != nil {
		log = cfg.Logger
	}
	return &AudD{cfg: cfg, client: client, log: log}
}

func (a *AudD) Name() string           { return AudDName }
func (a *AudD) Enabled() bool          { return a.cfg.APIToken != "" }
func (a *AudD) NeedsFingerprint() bool { return false }
func (a *AudD) MaxUploadBytes() int64  { return AudDMaxUploadBytes }

func (a *AudD) Lookup(ctx context.Context, q Query) (*models.RecognitionMatch, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}

	f, err := os.Open(q.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if info.Size() > AudDMaxUploadBytes {
		return nil, fmt.Errorf("%w: %s > %s", ErrPayloadTooLarge,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(AudDMaxUploadBytes))
	}
	if info.Size() < audDLowConfidence {
		a.log.Warnf("[%s] file is only %s, recognition chance is low", AudDName, humanize.IBytes(uint64(info.Size())))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("api_token", a.cfg.APIToken)
	_ = mw.WriteField("return", "apple_music,spotify")
	_ = mw.WriteField("accurate_offsets", "true")
	part, err := mw.CreateFormFile("file", filepath.Base(q.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrUnavailable, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%w: reading audio: %v", ErrRejected, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: building form: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequest(http.MethodPost, a.cfg.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	a.log.Debugf("[%s] submitting %s", AudDName, humanize.IBytes(uint64(info.Size())))
	status, raw, err := do(ctx, a.client, req)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: HTTP %d: body is not JSON", ErrMalformedResponse, status)
	}

	doc := gjson.ParseBytes(raw)
	if s := doc.Get("status").String(); s != "success" {
		return nil, fmt.Errorf("%w: status=%q %s", ErrRejected, s, doc.Get("error.error_message").String())
	}
	result := doc.Get("result")
	if !result.Exists() || result.Type == gjson.Null {
		return nil, ErrNoMatch
	}

	match := resultToMatch(result)
	a.log.Infof("[%s] matched %q by %q", AudDName, match.Title, match.Artist)
	return match, nil
}

func resultToMatch(r gjson.Result) *models.RecognitionMatch {
	m := &models.RecognitionMatch{
		Title:    orDefault(r.Get("title").String(), UnknownTitle),
		Artist:   orDefault(r.Get("artist").String(), UnknownArtist),
		Album:    r.Get("album").String(),
		AlbumArt: albumArt(r),
		Source:   AudDName,
	}
	if date := r.Get("release_date").String(); date != "" {
		if len(date) > 4 {
			date = date[:4]
		}
		m.Year = date
	}
	return m
}

// albumArt prefers the first Spotify image and falls back to the Apple Music
// artwork template.
// albumArt prefers Spotify whenever an images list is present, even an empty
// one; Apple Music artwork is used only when Spotify has no images list.
func albumArt(r gjson.Result) string {
	if images := r.Get("spotify.album.images"); images.IsArray() {
		return images.Get("0.url").String()
	}
	if u := r.Get("apple_music.artwork.url").String(); u != "" {
		u = strings.ReplaceAll(u, "{w}", appleArtworkSize)
		return strings.ReplaceAll(u, "{h}", appleArtworkSize)
	}
	return ""
}
