package browser

import (
	"context"
	"encoding/json"

	"github.com/chromedp/chromedp"

	"github.com/watchvane/sentinel/pkg/types"
)

// emptyContentScript implements spec.md §4.4 step 5 "Empty content": body
// text length after trim and count of visible non-script/style elements.
const emptyContentScript = `(function(){
  var text = (document.body ? document.body.innerText : "").trim();
  var all = document.body ? document.body.querySelectorAll("*") : [];
  var visible = 0;
  for (var i = 0; i < all.length; i++) {
    var el = all[i];
    var tag = el.tagName ? el.tagName.toLowerCase() : "";
    if (tag === "script" || tag === "style") continue;
    var r = el.getClientRects();
    if (r && r.length > 0) visible++;
  }
  return JSON.stringify({textLength: text.length, visibleCount: visible});
})()`

type emptyContentResult struct {
	TextLength   int `json:"textLength"`
	VisibleCount int `json:"visibleCount"`
}

// IsEmptyBody evaluates the empty-content heuristic in the active page.
func IsEmptyBody(ctx context.Context) (bool, error) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(emptyContentScript, &raw)); err != nil {
		return false, err
	}
	var res emptyContentResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return false, err
	}
	return res.TextLength == 0 && res.VisibleCount < 5, nil
}

// iframeScript implements spec.md §4.4 step 5 "Iframes": enumerate
// <iframe> elements without reaching into cross-origin contents.
const iframeScript = `(function(){
  var frames = document.querySelectorAll("iframe");
  var out = [];
  for (var i = 0; i < frames.length; i++) {
    var f = frames[i];
    var hasSrc = !!f.getAttribute("src");
    var connected = f.isConnected;
    var rect = f.getClientRects();
    var loaded = hasSrc && connected && rect && rect.length > 0;
    out.push({src: f.getAttribute("src") || "", hasSrc: hasSrc, loaded: loaded, connected: connected});
  }
  return JSON.stringify(out);
})()`

// InspectIframes returns the enumerated iframe checks for the active page.
func InspectIframes(ctx context.Context) ([]types.IframeCheck, error) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(iframeScript, &raw)); err != nil {
		return nil, err
	}
	var checks []types.IframeCheck
	if err := json.Unmarshal([]byte(raw), &checks); err != nil {
		return nil, err
	}
	return checks, nil
}

// videoScript implements spec.md §4.4 step 5 "Videos".
const videoScript = `(function(){
  var vids = document.querySelectorAll("video");
  var out = [];
  for (var i = 0; i < vids.length; i++) {
    var v = vids[i];
    var hasSource = !!v.getAttribute("src") || v.querySelectorAll("source").length > 0;
    var errCode = v.error ? v.error.code : 0;
    var errMsg = v.error ? (v.error.message || "") : "";
    out.push({readyState: v.readyState, networkState: v.networkState, hasSource: hasSource, errorCode: errCode, errorMessage: errMsg});
  }
  return JSON.stringify(out);
})()`

const networkStateNoSource = 3

// InspectVideos returns the enumerated video checks for the active page,
// with Playable derived per spec.md §4.2 rule 7 (readyState < 2 OR
// networkState == NO_SOURCE OR error set OR missing source means unplayable).
func InspectVideos(ctx context.Context) ([]types.VideoCheck, error) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(videoScript, &raw)); err != nil {
		return nil, err
	}
	var checks []types.VideoCheck
	if err := json.Unmarshal([]byte(raw), &checks); err != nil {
		return nil, err
	}
	for i := range checks {
		c := &checks[i]
		unplayable := c.ReadyState < 2 || c.NetworkState == networkStateNoSource || c.ErrorCode != 0 || !c.HasSource
		c.Playable = !unplayable
	}
	return checks, nil
}

// AnyVideoUnplayable reports whether classifier.RawOutcome.VideoUnplayable
// should be set from the enumerated video checks.
func AnyVideoUnplayable(checks []types.VideoCheck) bool {
	for _, c := range checks {
		if !c.Playable {
			return true
		}
	}
	return false
}

// IframeCounts tallies total/failed iframe checks for classifier.RawOutcome.
func IframeCounts(checks []types.IframeCheck) (total, failed int) {
	total = len(checks)
	for _, c := range checks {
		if !c.Loaded {
			failed++
		}
	}
	return total, failed
}
