package soundmeta

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/fingerprint"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/provider"
)

var (
	ErrTranscodeOversize = fmt.Errorf("%w: output still exceeds provider upload limit", audio.ErrTranscode)
	ErrInternal          = errors.New("internal pipeline error")
	ErrHistoryDisabled   = errors.New("history is disabled")
	errProviderPanic     = errors.New("provider panicked")
)

// Decision says what the pipeline does after a step fails.
type Decision int

const (
	FallThrough Decision = iota // try the next provider
	FailRequest                 // stop and report
)

func (d Decision) String() string {
	if d == FailRequest {
		return "fail_request"
	}
	return "fall_through"
}

type Rule struct {
	Err      error
	Kind     models.ErrorKind
	Code     string
	Decision Decision
}

// Policy is the complete mapping from step errors to outcomes. It is matched
// top to bottom with errors.Is, so more specific sentinels come first.
var Policy = []Rule{
	{audio.ErrUnreadable, models.KindValidation, "unreadable", FailRequest},
	{audio.ErrInvalidContainer, models.KindValidation, "invalid_container", FailRequest},
	{audio.ErrUnsupportedEncoding, models.KindValidation, "unsupported_encoding", FailRequest},
	{audio.ErrComputation, models.KindValidation, "duration_uncomputable", FailRequest},
	{audio.ErrTooShort, models.KindValidation, "too_short", FailRequest},

	{fingerprint.ErrToolUnavailable, models.KindToolFailure, "fingerprint_unavailable", FallThrough},
	{fingerprint.ErrToolError, models.KindToolFailure, "fingerprint_failed", FallThrough},
	{fingerprint.ErrIncompleteResult, models.KindToolFailure, "fingerprint_incomplete", FallThrough},

	{ErrTranscodeOversize, models.KindToolFailure, "transcode_oversize", FailRequest},
	{audio.ErrTranscode, models.KindToolFailure, "transcode_failed", FailRequest},

	{provider.ErrDisabled, models.KindConfiguration, "provider_disabled", FallThrough},
	{provider.ErrNoMatch, models.KindProviderMiss, "no_match", FallThrough},
	{provider.ErrLowConfidence, models.KindProviderMiss, "low_confidence", FallThrough},
	{provider.ErrPayloadTooLarge, models.KindProviderMiss, "payload_too_large", FallThrough},
	{provider.ErrUnavailable, models.KindProviderUnavailable, "provider_unavailable", FallThrough},
	{provider.ErrRejected, models.KindProviderUnavailable, "provider_rejected", FallThrough},
	{provider.ErrMalformedResponse, models.KindProviderUnavailable, "malformed_response", FallThrough},
	{errProviderPanic, models.KindProviderUnavailable, "provider_panic", FallThrough},

	{context.Canceled, models.KindCancelled, "cancelled", FailRequest},
	{context.DeadlineExceeded, models.KindCancelled, "deadline_exceeded", FailRequest},
}

var internalRule = Rule{Err: ErrInternal, Kind: models.KindInternal, Code: "internal", Decision: FailRequest}

// Classify returns the first rule matching err, or the internal-defect rule.
func Classify(err error) Rule {
	for _, r := range Policy {
		if errors.Is(err, r.Err) {
			return r
		}
	}
	return internalRule
}

// classifyLookup is Classify for provider errors: an error no rule knows
// about is a misbehaving provider, not a pipeline defect.
func classifyLookup(err error) Rule {
	r := Classify(err)
	if r.Kind == models.KindInternal {
		return Rule{Err: err, Kind: models.KindProviderUnavailable, Code: "provider_error", Decision: FallThrough}
	}
	return r
}

func (r Rule) reason(err error) models.FailureReason {
	fr := models.FailureReason{Kind: r.Kind, Code: r.Code}
	if err != nil {
		fr.Detail = err.Error()
	}
	return fr
}
