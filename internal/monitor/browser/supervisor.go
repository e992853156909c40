// Package browser implements the headless-browser probe path of spec.md
// §4.4: a single shared chromedp browser instance, lazily launched and
// idle-shut-down, that runs per-probe tab sessions (navigation, console
// and network listeners, login flow, DOM inspection).
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// defaultIdleTimeout is how long the shared browser process is kept alive
// with no in-flight probes before it is torn down (spec.md §5 "Browser
// instance: idle auto-shutdown").
const defaultIdleTimeout = 5 * time.Minute

// Supervisor owns the single shared browser process used by every browser
// probe. Unlike the teacher's fixed-size ChromeInstance pool (one tab
// queue per rendering request), probes here are infrequent and bursty
// relative to render-service traffic, so a lazily-launched, idle-reaped
// single instance is generalized from the teacher's launch/health-check/
// terminate lifecycle (chrome.ChromeInstance) instead of a multi-instance
// queue.
type Supervisor struct {
	logger      *zap.Logger
	idleTimeout time.Duration

	mu              sync.RWMutex // guards ctx/cancel/allocCancel and leaseCount
	ctx             context.Context
	cancel          context.CancelFunc
	allocCancel     context.CancelFunc
	leaseCount      int
	idleSince       time.Time
	shutdown        bool
	idleTimer       *time.Timer
	idleTimerActive bool
}

// NewSupervisor builds a Supervisor that launches Chrome on first lease.
func NewSupervisor(logger *zap.Logger, idleTimeout time.Duration) *Supervisor {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Supervisor{logger: logger, idleTimeout: idleTimeout}
}

// Lease represents one probe's claim on the shared browser context.
// Release must be called exactly once.
type Lease struct {
	sup *Supervisor
	ctx context.Context
}

// Context returns the shared browser context itself; callers derive their
// own per-tab context from it (chromedp.NewContext).
func (l *Lease) Context() context.Context { return l.ctx }

// Acquire launches the browser if it is not already running, cancels any
// pending idle-shutdown timer, and returns a Lease bound to the shared
// browser context. Mirrors the read/write split of a sync.RWMutex: many
// probes can hold a lease concurrently (read side), while launch and
// idle-teardown are mutually exclusive write-side operations.
func (s *Supervisor) Acquire(ctx context.Context) (*Lease, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil, ErrSupervisorShutdown
	}

	if s.idleTimerActive {
		s.idleTimer.Stop()
		s.idleTimerActive = false
	}

	if s.ctx == nil {
		if err := s.launchLocked(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	s.leaseCount++
	browserCtx := s.ctx
	s.mu.Unlock()

	return &Lease{sup: s, ctx: browserCtx}, nil
}

// Release returns the lease. When it is the last outstanding lease, an
// idle-shutdown timer is armed.
func (l *Lease) Release() {
	l.sup.mu.Lock()
	defer l.sup.mu.Unlock()
	l.sup.leaseCount--
	if l.sup.leaseCount <= 0 && !l.sup.shutdown {
		l.sup.idleSince = time.Now()
		l.sup.armIdleTimerLocked()
	}
}

func (s *Supervisor) armIdleTimerLocked() {
	s.idleTimerActive = true
	s.idleTimer = time.AfterFunc(s.idleTimeout, s.reapIfIdle)
}

func (s *Supervisor) reapIfIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseCount > 0 || s.ctx == nil {
		return
	}
	s.logger.Info("browser supervisor reaping idle instance",
		zap.Duration("idle_for", time.Since(s.idleSince)))
	s.terminateLocked()
}

// launchLocked starts a headless Chrome process. Caller must hold s.mu.
func (s *Supervisor) launchLocked() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	var product string
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, p, _, _, _, err := browser.GetVersion().Do(ctx)
		product = p
		return err
	})); err != nil {
		s.logger.Warn("failed to capture browser version", zap.Error(err))
	} else {
		s.logger.Info("browser supervisor launched", zap.String("version", product))
	}

	s.ctx = browserCtx
	s.cancel = cancel
	s.allocCancel = allocCancel
	return nil
}

func (s *Supervisor) terminateLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.ctx = nil
	s.cancel = nil
	s.allocCancel = nil
}

// Shutdown permanently stops the browser and refuses further leases.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.idleTimerActive {
		s.idleTimer.Stop()
		s.idleTimerActive = false
	}
	s.terminateLocked()
}

// Active reports whether a Chrome process is currently running, for the
// browser session_active gauge.
func (s *Supervisor) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx != nil
}
