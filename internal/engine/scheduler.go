// Package engine implements C10 Scheduler: the fixed-interval/
// event-driven cycle loop that drives one run_once pass per tick, with
// min-cycle enforcement and per-cycle panic recovery, per spec.md §4.10.
// Grounded on original_source's loop.py (cycle_start/elapsed/
// min_cycle_seconds/wait_for_update-or-sleep) generalized onto the
// teacher's errgroup-supervised background-goroutine shape.
package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoPolymarket/polymarket-trader/internal/eventlog"
)

// Config mirrors spec.md §6's app.* scheduling keys.
type Config struct {
	LoopSeconds      float64
	EventDriven      bool
	UseBookFeedWait  bool
	MinCycleSeconds  float64
}

// WaitFn blocks until a new book update lands after afterTs or timeout
// elapses, returning the new watermark. Implemented by *feed.BookFeed.
type WaitFn func(afterTs int64, timeout time.Duration) int64

// Scheduler runs one cycle function repeatedly, honoring event-driven
// wakeups from the book feed when configured.
type Scheduler struct {
	cfg    Config
	cycle  func(ctx context.Context) error
	wait   WaitFn
	log    *eventlog.Log
	logger *slog.Logger
}

// New constructs a Scheduler. wait may be nil when event-driven mode is
// disabled or no book feed is wired.
func New(cfg Config, cycle func(ctx context.Context) error, wait WaitFn, log *eventlog.Log, logger *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, cycle: cycle, wait: wait, log: log, logger: logger}
}

// Run blocks until ctx is cancelled, driving the cycle loop.
func (s *Scheduler) Run(ctx context.Context) error {
	var lastWatermark int64
	interval := time.Duration(s.cfg.LoopSeconds * float64(time.Second))
	minCycle := time.Duration(s.cfg.MinCycleSeconds * float64(time.Second))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cycleStart := time.Now()
		s.runCycleSafely(ctx)
		elapsed := time.Since(cycleStart)
		if elapsed < minCycle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(minCycle - elapsed):
			}
		}

		if s.cfg.EventDriven && s.cfg.UseBookFeedWait && s.wait != nil {
			lastWatermark = s.wait(lastWatermark, interval)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// runCycleSafely invokes the cycle function, converting a panic into a
// loop_error event so one bad cycle never kills the scheduler.
func (s *Scheduler) runCycleSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panic", "recovered", r)
			if s.log != nil {
				_ = s.log.Emit(eventlog.KindLoopError, map[string]any{"error": r, "panic": true})
			}
		}
	}()
	if err := s.cycle(ctx); err != nil {
		s.logger.Error("cycle error", "error", err)
		if s.log != nil {
			_ = s.log.Emit(eventlog.KindLoopError, map[string]any{"error": err.Error()})
		}
	}
}

// RunBackground launches the Scheduler plus any number of long-lived
// background feed goroutines under a shared errgroup, matching the
// teacher's supervised-goroutine app shape: any goroutine's error or
// panic cancels ctx for all the others.
func RunBackground(ctx context.Context, sched *Scheduler, background ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	for _, fn := range background {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
