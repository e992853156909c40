// Package classifier maps a raw probe outcome to the closed status
// taxonomy of spec.md §4.2. Rules are evaluated in order; the first
// match wins except where a rule explicitly falls through.
package classifier

import (
	"strings"

	"github.com/watchvane/sentinel/internal/common/pattern"
	"github.com/watchvane/sentinel/pkg/types"
)

// mediaTokens are the "media/video/player" substrings rule 9 looks for in
// console error text, matched case-insensitively via the wildcard matcher
// (internal/common/pattern, adapted from the teacher's bot-token matcher).
var mediaTokens = []string{"*video*", "*media*", "*player*", "*playback*", "*hls*", "*dash*", "*mse*"}

// RawOutcome is the normalized signal set both probers (C3, C4) produce
// for the classifier. Fields irrelevant to a given prober are left zero.
type RawOutcome struct {
	TransportError types.TransportError
	HTTPStatus     int
	LatencyMs      int64

	// Browser-only inspection signals (spec.md §4.4 step 5-6).
	IsBrowserProbe        bool
	EmptyBody             bool
	IframesTotal          int
	IframesFailed         int
	VideoUnplayable       bool
	CriticalResourceFailed bool
	ConsoleErrors         []types.ConsoleError

	// IsFirstProbe is true when the entry's persisted history is empty;
	// callers substitute FRESH for what would otherwise be UP (spec.md
	// rule 11 and §4.5 "First-probe rule").
	IsFirstProbe bool
}

const warningLatencyThresholdMs = 5000

// Classify implements spec.md §4.2's ordered rule table.
func Classify(o RawOutcome) types.Status {
	// 1. Transport timeout.
	if o.TransportError == types.TransportErrorTimeout {
		return types.StatusTimeout
	}

	// 2. Transport DNS/connection/TLS error.
	switch o.TransportError {
	case types.TransportErrorDNS, types.TransportErrorConnection, types.TransportErrorTLS, types.TransportErrorOther:
		return types.StatusNetworkError
	}

	// 3. Server error.
	if o.HTTPStatus >= 500 {
		return types.StatusDown
	}

	// 4. Client error.
	if o.HTTPStatus >= 400 && o.HTTPStatus < 500 {
		return types.StatusWarning
	}

	if o.IsBrowserProbe {
		// 5. Empty content.
		if o.EmptyBody {
			return types.StatusEmpty
		}

		// 6. Iframe failures.
		if o.IframesTotal > 0 && o.IframesFailed > 0 {
			if o.IframesFailed >= o.IframesTotal {
				return types.StatusIframeFailed
			}
			return types.StatusPartial
		}

		// 7. Unplayable video.
		if o.VideoUnplayable {
			return types.StatusNotPlayable
		}

		// 8. Critical resource failure.
		if o.CriticalResourceFailed {
			return types.StatusPartial
		}

		// 9. Console errors.
		if len(o.ConsoleErrors) > 0 {
			if consoleMentionsMedia(o.ConsoleErrors) {
				return types.StatusNotPlayable
			}
			return types.StatusJSError
		}
	}

	// 10. Slow response.
	if o.LatencyMs > warningLatencyThresholdMs {
		return types.StatusWarning
	}

	// 11. Otherwise UP, or FRESH on the entry's first successful probe.
	if o.IsFirstProbe {
		return types.StatusFresh
	}
	return types.StatusUp
}

func consoleMentionsMedia(errs []types.ConsoleError) bool {
	for _, e := range errs {
		lower := strings.ToLower(e.Message)
		for _, tok := range mediaTokens {
			if pattern.MatchWildcard(lower, tok) {
				return true
			}
		}
	}
	return false
}
