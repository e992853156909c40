// Package scheduler implements the sweep loop of spec.md §4.6: a fixed
// master tick enumerates enabled entries and dispatches any that are due,
// without awaiting completion, isolating any one entry's failure from the
// rest of the sweep. The ticker-loop shape (select over ticker.C/ctx.Done,
// a tick counter, periodic status logging) is grounded on the teacher's
// cachedaemon.Run daemon loop (internal/cachedaemon/scheduler.go).
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/store"
)

const (
	defaultTickInterval = 5 * time.Minute
	startupDeferral      = 10 * time.Second
	shutdownDrainTimeout = 10 * time.Second
	freshnessWindow      = 30 * time.Second
)

// Dispatch is dispatch.Dispatcher.Dispatch with the ProbeResult dropped
// (main.go adapts one to the other); declared locally so the
// scheduler never imports the dispatch package's prober/store wiring
// directly, the same seam dispatch.Emitter draws against pushbus.
type Dispatch func(ctx context.Context, urlID string) error

// Scheduler runs the periodic sweep described in spec.md §4.6.
type Scheduler struct {
	store        store.Store
	dispatch     Dispatch
	logger       *zap.Logger
	tickInterval time.Duration
	maxInFlight  int

	wg sync.WaitGroup
}

// New builds a Scheduler. tickInterval <= 0 uses the 5-minute default.
func New(st store.Store, dispatch Dispatch, logger *zap.Logger, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &Scheduler{
		store:        st,
		dispatch:     dispatch,
		logger:       logger,
		tickInterval: tickInterval,
		maxInFlight:  runtime.GOMAXPROCS(0) * 4,
	}
}

// Run blocks until ctx is cancelled. The first sweep is deferred by
// startupDeferral to let subsystems warm up; on cancellation the scheduler
// stops ticking and waits up to shutdownDrainTimeout for in-flight
// dispatches it started to finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("tick_interval", s.tickInterval))

	startupTimer := time.NewTimer(startupDeferral)
	defer startupTimer.Stop()

	select {
	case <-startupTimer.C:
	case <-ctx.Done():
		s.logger.Info("scheduler shutdown before startup sweep")
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	tickCount := 0
	for {
		select {
		case <-ticker.C:
			tickCount++
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler shutdown requested, draining in-flight dispatches")
			s.drain()
			return
		}
	}
}

// sweep enumerates all enabled entries and dispatches those due per
// spec.md §4.6's condition. A bounded semaphore protects the shared
// browser supervisor from unbounded concurrent fan-out (the §9 Open
// Question decision); a blocked slot is logged, not dropped.
func (s *Scheduler) sweep(ctx context.Context) {
	entries, err := s.store.FindAll(ctx)
	if err != nil {
		s.logger.Error("scheduler: failed to list entries", zap.Error(err))
		return
	}

	sem := make(chan struct{}, s.maxInFlight)
	now := time.Now()
	dispatched := 0

	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		threshold := e.CheckInterval
		if threshold <= 0 {
			threshold = defaultTickInterval
		}
		if now.Sub(e.LastChecked) < threshold {
			continue
		}

		select {
		case sem <- struct{}{}:
		default:
			s.logger.Warn("scheduler: concurrency cap reached, deferring entry to next tick", zap.String("urlId", e.ID))
			continue
		}

		dispatched++
		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer func() { <-sem }()
			if err := s.dispatch(context.Background(), id); err != nil {
				s.logger.Warn("scheduler: dispatch failed", zap.String("urlId", id), zap.Error(err))
			}
		}(e.ID)
	}

	if dispatched > 0 {
		s.logger.Info("scheduler: sweep dispatched entries", zap.Int("count", dispatched), zap.Int("total", len(entries)))
	}
}

// MaybeRedispatch implements spec.md §4.6's opportunistic redispatch: any
// reader of the entry list (HTTP handlers, the push bus) may call this
// with a single entry's id and last-checked time; if the entry is stale
// beyond the freshness window, it shares dispatch's single-flight
// guarantee rather than forcing a second concurrent probe.
func (s *Scheduler) MaybeRedispatch(ctx context.Context, urlID string, lastChecked time.Time) {
	if time.Since(lastChecked) < freshnessWindow {
		return
	}
	go func() {
		if err := s.dispatch(context.Background(), urlID); err != nil {
			s.logger.Debug("scheduler: opportunistic redispatch failed", zap.String("urlId", urlID), zap.Error(err))
		}
	}()
	_ = ctx
}

func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownDrainTimeout):
		s.logger.Warn("scheduler: shutdown drain timed out, returning with dispatches still in flight")
	}
}
