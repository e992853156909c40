// Package dispatch implements the probe dispatcher of spec.md §4.5: a
// single-flight map keyed by url id, prober selection between the HTTP
// and browser probes, optimistic-concurrency persistence with retry, and
// asynchronous emission to the push bus. The single-flight map and its
// get-or-insert critical section are grounded on the same shape as the
// teacher's in-process caches guarded by a mutex
// (internal/cachedaemon/distributor.go's in-flight bookkeeping); the
// retry/backoff loop is adapted from that file's HandleRecacheResults.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/browser"
	"github.com/watchvane/sentinel/internal/monitor/classifier"
	"github.com/watchvane/sentinel/internal/monitor/httpprobe"
	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

const (
	defaultTimeout    = 60 * time.Second
	browserMinTimeout = 60 * time.Second

	retryBaseDelay = 100 * time.Millisecond
	maxRetries     = 3
)

// Emitter pushes a completed ProbeResult out to live subscribers; it is
// satisfied by internal/monitor/pushbus.Hub. Declared here, not imported
// from pushbus, so the dispatcher never depends on the transport layer
// that depends on it for dispatch-on-demand (checkNow/opportunistic
// redispatch call back into this package).
type Emitter interface {
	EmitProbeResult(r *types.ProbeResult)
	EmitStatusChange(urlID string, old, new types.Status)
}

// inflight is the single-flight handle other callers join while a probe
// for the same urlId is already running.
type inflight struct {
	done   chan struct{}
	result *types.ProbeResult
	err    error
}

// Dispatcher implements dispatch(urlId) -> ProbeResult (spec.md §4.5).
type Dispatcher struct {
	store     store.Store
	httpP     *httpprobe.Prober
	browserP  *browser.Prober
	emitter   Emitter
	logger    *zap.Logger
	probeSink func(urlID string, isBrowser bool, r *types.ProbeResult)

	mu       sync.Mutex
	inFlight map[string]*inflight
}

// New constructs a Dispatcher. probeSink is an optional hook for
// supplementary analytics persistence (e.g. SQLStore.RecordProbeDetail or
// a ClickHouseSink.Record); it may be nil.
func New(st store.Store, httpP *httpprobe.Prober, browserP *browser.Prober, emitter Emitter, logger *zap.Logger,
	probeSink func(urlID string, isBrowser bool, r *types.ProbeResult)) *Dispatcher {
	return &Dispatcher{
		store:     st,
		httpP:     httpP,
		browserP:  browserP,
		emitter:   emitter,
		logger:    logger,
		probeSink: probeSink,
		inFlight:  make(map[string]*inflight),
	}
}

// Dispatch runs dispatch(urlId): joins an in-flight probe if one exists,
// otherwise runs a fresh one. Every exit path — including a panic in the
// underlying prober — removes the urlId from the in-flight table.
func (d *Dispatcher) Dispatch(ctx context.Context, urlID string) (*types.ProbeResult, error) {
	d.mu.Lock()
	if existing, ok := d.inFlight[urlID]; ok {
		d.mu.Unlock()
		return joinInflight(ctx, existing)
	}
	handle := &inflight{done: make(chan struct{})}
	d.inFlight[urlID] = handle
	d.mu.Unlock()

	go d.run(urlID, handle)

	return joinInflight(ctx, handle)
}

func joinInflight(ctx context.Context, h *inflight) (*types.ProbeResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes the full probe+persist+emit sequence for urlId and always
// clears the in-flight slot on exit, including when the prober panics.
func (d *Dispatcher) run(urlID string, handle *inflight) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher: prober panicked", zap.String("urlId", urlID), zap.Any("panic", r))
			handle.err = errPanicRecovered
		}
		d.mu.Lock()
		delete(d.inFlight, urlID)
		d.mu.Unlock()
		close(handle.done)
	}()

	result, err := d.probeAndPersist(context.Background(), urlID)
	handle.result = result
	handle.err = err
}

func (d *Dispatcher) probeAndPersist(ctx context.Context, urlID string) (*types.ProbeResult, error) {
	entry, err := d.store.FindByID(ctx, urlID)
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	isBrowser := entry.Auth != nil && entry.Auth.Type == model.AuthBrowserLogin
	if isBrowser && timeout < browserMinTimeout {
		timeout = browserMinTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := d.probe(probeCtx, entry, isBrowser)

	persisted := d.persistWithRetry(ctx, urlID, result)
	result.Persisted = persisted

	if d.probeSink != nil {
		d.probeSink(urlID, isBrowser, result)
	}

	oldStatus := entry.Status
	d.emitter.EmitProbeResult(result)
	if oldStatus != result.Status {
		d.emitter.EmitStatusChange(urlID, oldStatus, result.Status)
	}

	return result, nil
}

func (d *Dispatcher) probe(ctx context.Context, entry *model.Entry, isBrowser bool) *types.ProbeResult {
	now := time.Now()
	firstProbe := len(entry.History) == 0

	if isBrowser {
		out, err := d.browserP.Probe(ctx, browser.Request{URL: entry.URL, Auth: entry.Auth, TimeoutMs: 60_000})
		if err != nil {
			return d.timeoutResult(entry.ID, now)
		}
		raw := out.Raw
		raw.IsFirstProbe = firstProbe
		status := classifier.Classify(raw)
		return &types.ProbeResult{
			URLID: entry.ID, Status: status, HTTPStatus: out.HTTPStatus, LatencyMs: out.LatencyMs,
			ErrorKind: out.ErrorKind, CheckedAt: now, ErrorDetails: classifier.BuildErrorDetails(status, raw, entry.URL),
			ConsoleErrors: out.ConsoleErrors, NetworkErrors: out.NetworkErrors, IframeChecks: out.IframeChecks,
			VideoChecks: out.VideoChecks, ScreenshotRef: out.ScreenshotRef,
			AuthAttempted: out.AuthAttempted, AuthSucceeded: out.AuthSucceeded,
		}
	}

	req := httpprobe.Request{URL: entry.URL, TimeoutMs: 35_000}
	if entry.Auth != nil {
		switch entry.Auth.Type {
		case model.AuthBearer:
			req.BearerToken = entry.Auth.BearerToken
		case model.AuthAPIKey:
			req.APIKeyHeader = entry.Auth.APIKeyHeader
			req.APIKeyValue = entry.Auth.APIKeyValue
		case model.AuthBasic:
			req.BasicUser = entry.Auth.Username
			req.BasicPass = entry.Auth.Password
		}
	}
	out := d.httpP.Probe(ctx, req)
	raw := out.Raw
	raw.IsFirstProbe = firstProbe
	status := classifier.Classify(raw)
	return &types.ProbeResult{
		URLID: entry.ID, Status: status, HTTPStatus: out.HTTPStatus, LatencyMs: out.LatencyMs,
		ContentLength: out.ContentLength, ErrorMessage: out.ErrorMessage, CheckedAt: now,
		ErrorDetails: classifier.BuildErrorDetails(status, raw, entry.URL),
	}
}

func (d *Dispatcher) timeoutResult(urlID string, checkedAt time.Time) *types.ProbeResult {
	raw := classifier.RawOutcome{TransportError: types.TransportErrorTimeout}
	status := classifier.Classify(raw)
	return &types.ProbeResult{
		URLID: urlID, Status: status, CheckedAt: checkedAt,
		ErrorDetails: classifier.BuildErrorDetails(status, raw, ""),
	}
}

// persistWithRetry implements spec.md §4.5's "Persistence with retry":
// on VERSION_CONFLICT, refetch/reapply/retry up to 3 times with
// exponential backoff, the same delay-doubling shape as the teacher's
// HandleRecacheResults retry loop. Returns false if every attempt fails,
// in which case the result is still emitted but tagged non-persisted.
func (d *Dispatcher) persistWithRetry(ctx context.Context, urlID string, result *types.ProbeResult) bool {
	delay := retryBaseDelay
	for attempt := 0; attempt < maxRetries; attempt++ {
		entry, err := d.store.FindByID(ctx, urlID)
		if err != nil {
			d.logger.Warn("dispatcher: entry vanished before persist, dropping", zap.String("urlId", urlID), zap.Error(err))
			return false
		}

		_, err = d.store.AppendHistory(ctx, urlID, entry.Version, model.StatusPatch{
			LatencyMs: result.LatencyMs, Status: result.Status, HTTPStatus: result.HTTPStatus,
			StatusMessage: result.ErrorMessage, CheckedAt: result.CheckedAt,
		})
		if err == nil {
			return true
		}
		if err != model.ErrVersionConflict {
			d.logger.Warn("dispatcher: persist failed", zap.String("urlId", urlID), zap.Error(err))
			return false
		}

		time.Sleep(delay)
		delay *= 2
	}
	d.logger.Warn("dispatcher: version-conflict retries exhausted, dropping update", zap.String("urlId", urlID))
	return false
}

var errPanicRecovered = panicRecoveredError{}

type panicRecoveredError struct{}

func (panicRecoveredError) Error() string { return "dispatcher: prober panicked" }
