package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/common/urlutil"
	"github.com/watchvane/sentinel/internal/monitor/classifier"
	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/pkg/types"
)

const networkIdleTimeout = 30 * time.Second

// Prober runs spec.md §4.4's per-probe step sequence against the
// supervisor's shared browser instance.
type Prober struct {
	sup    *Supervisor
	logger *zap.Logger
}

func NewProber(sup *Supervisor, logger *zap.Logger) *Prober {
	return &Prober{sup: sup, logger: logger}
}

// Request carries everything a browser probe needs beyond the target URL.
type Request struct {
	URL       string
	Auth      *model.AuthConfig
	TimeoutMs int64
}

// Outcome is the browser prober's result.
type Outcome struct {
	Raw           classifier.RawOutcome
	HTTPStatus    int
	LatencyMs     int64
	ConsoleErrors []types.ConsoleError
	NetworkErrors []types.NetworkError
	IframeChecks  []types.IframeCheck
	VideoChecks   []types.VideoCheck
	ScreenshotRef string
	AuthAttempted bool
	AuthSucceeded bool
	ErrorKind     types.ErrorKind
}

// Probe runs the full step sequence of spec.md §4.4.
func (p *Prober) Probe(ctx context.Context, req Request) (Outcome, error) {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lease, err := p.sup.Acquire(probeCtx)
	if err != nil {
		return Outcome{}, err
	}
	defer lease.Release()

	tabCtx, tabCancel := chromedp.NewContext(lease.Context())
	defer tabCancel()
	stop := context.AfterFunc(probeCtx, tabCancel)
	defer stop()

	start := time.Now()
	out := Outcome{Raw: classifier.RawOutcome{IsBrowserProbe: true}}

	// Step 1: attach console/network listeners before any navigation.
	var statusCode int
	attachListeners(tabCtx, &out, &statusCode)

	// Step 2: browser login, if configured.
	if req.Auth != nil && req.Auth.Type == model.AuthBrowserLogin {
		out.AuthAttempted = true
		ok, loginErr := login(tabCtx, p.logger, req.Auth, req.URL)
		if loginErr != nil || !ok {
			out.ErrorKind = types.ErrorKindAuthFailed
			out.Raw.HTTPStatus = 0
			out.LatencyMs = time.Since(start).Milliseconds()
			captureScreenshotInto(tabCtx, &out, req.URL, p.logger)
			return out, nil
		}
		out.AuthSucceeded = true
	}

	// Step 3: navigate and wait for DOM parse.
	if err := chromedp.Run(tabCtx, chromedp.Navigate(req.URL), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		out.Raw.TransportError = classifyNavigationError(err)
		out.LatencyMs = time.Since(start).Milliseconds()
		captureScreenshotInto(tabCtx, &out, req.URL, p.logger)
		return out, nil
	}

	// Step 4: best-effort network idle wait; never itself an error.
	waitNetworkIdle(tabCtx, networkIdleTimeout)

	// Step 5: inspection.
	emptyBody, _ := IsEmptyBody(tabCtx)
	iframeChecks, _ := InspectIframes(tabCtx)
	videoChecks, _ := InspectVideos(tabCtx)
	iframesTotal, iframesFailed := IframeCounts(iframeChecks)

	out.Raw.EmptyBody = emptyBody
	out.Raw.IframesTotal = iframesTotal
	out.Raw.IframesFailed = iframesFailed
	out.Raw.VideoUnplayable = AnyVideoUnplayable(videoChecks)
	out.Raw.ConsoleErrors = out.ConsoleErrors
	out.Raw.CriticalResourceFailed = hasCriticalResourceFailure(out.NetworkErrors)
	out.IframeChecks = iframeChecks
	out.VideoChecks = videoChecks

	out.HTTPStatus = statusCode
	out.Raw.HTTPStatus = statusCode
	out.LatencyMs = time.Since(start).Milliseconds()
	out.Raw.LatencyMs = out.LatencyMs

	// Step 7: attach a viewport screenshot to any non-UP outcome.
	if classifier.Classify(out.Raw) != types.StatusUp {
		captureScreenshotInto(tabCtx, &out, req.URL, p.logger)
	}

	return out, nil
}

// captureScreenshotInto attaches a content-addressed screenshot ref to out,
// logging and otherwise ignoring capture failure -- a missing screenshot
// never fails the probe itself.
func captureScreenshotInto(ctx context.Context, out *Outcome, url string, logger *zap.Logger) {
	ref, _, err := CaptureScreenshot(ctx, url)
	if err != nil {
		logger.Warn("browser: screenshot capture failed", zap.String("url", url), zap.Error(err))
		return
	}
	out.ScreenshotRef = ref
}

// attachListeners wires CDP console/network event listeners into the tab
// context, generalized from the teacher's chromedp.ListenTarget switch in
// renderer.go's buildTasks (EventConsoleAPICalled / EventLoadingFailed).
func attachListeners(ctx context.Context, out *Outcome, statusCode *int) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			if e.Type != cdpruntime.APITypeError && e.Type != cdpruntime.APITypeWarning {
				return
			}
			msg := consoleMessage(e)
			if msg == "" {
				return
			}
			line, col, source := consoleSourceInfo(e)
			out.ConsoleErrors = append(out.ConsoleErrors, types.ConsoleError{
				Message: msg, Source: source, Line: line, Column: col,
			})

		case *network.EventResponseReceived:
			if *statusCode == 0 {
				*statusCode = int(e.Response.Status)
			}

		case *network.EventLoadingFailed:
			out.NetworkErrors = append(out.NetworkErrors, types.NetworkError{
				ResourceType: string(e.Type),
				FailureText:  e.ErrorText,
			})
		}
	})
}

func consoleMessage(e *cdpruntime.EventConsoleAPICalled) string {
	for _, arg := range e.Args {
		if arg.Description != "" {
			return arg.Description
		}
		if len(arg.Value) > 0 {
			return string(arg.Value)
		}
	}
	return ""
}

func consoleSourceInfo(e *cdpruntime.EventConsoleAPICalled) (line, col int, source string) {
	if e.StackTrace == nil || len(e.StackTrace.CallFrames) == 0 {
		return 0, 0, ""
	}
	frame := e.StackTrace.CallFrames[0]
	return int(frame.LineNumber) + 1, int(frame.ColumnNumber) + 1, frame.URL
}

func hasCriticalResourceFailure(errs []types.NetworkError) bool {
	for _, e := range errs {
		switch e.ResourceType {
		case "Document", "Script", "Stylesheet":
			return true
		}
	}
	return false
}

// classifyNavigationError maps a chromedp navigation error to a transport
// error kind via Chrome's net::ERR_* error strings, the same string-match
// fallback the teacher's categorizeRenderError uses for errors it does not
// control directly.
func classifyNavigationError(err error) types.TransportError {
	if err == nil {
		return types.TransportErrorNone
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return types.TransportErrorTimeout
	case strings.Contains(msg, "name_not_resolved") || strings.Contains(msg, "dns"):
		return types.TransportErrorDNS
	case strings.Contains(msg, "connection") || strings.Contains(msg, "net::err_conn"):
		return types.TransportErrorConnection
	case strings.Contains(msg, "ssl") || strings.Contains(msg, "tls") || strings.Contains(msg, "certificate"):
		return types.TransportErrorTLS
	default:
		return types.TransportErrorOther
	}
}

// CaptureScreenshot implements spec.md §4.4 step 7: a single viewport
// screenshot on any non-UP outcome, stored at a content-addressed ref.
func CaptureScreenshot(ctx context.Context, url string) (string, []byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	})); err != nil {
		return "", nil, err
	}
	ref := urlutil.ContentAddressedRef(url, time.Now().UnixNano())
	return ref, buf, nil
}
