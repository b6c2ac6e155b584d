// Package scheduler re-runs a workflow against one shared context, so GPU
// handles and the frame counter persist between runs. Sub-second intervals
// ("16ms") are ticker-driven for frame pacing; anything else is treated as
// a cron expression ("@hourly", "*/5 * * * *"). When a run overlaps the
// next tick the tick is skipped instead of queued, which keeps slow frames
// from piling up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// Runner is the interface the scheduler uses to run workflows.
// Satisfied by the executor (avoids an import cycle).
type Runner interface {
	Run(ctx context.Context, def *schema.WorkflowDefinition, wc *wfctx.Context) (string, error)
}

// FrameScheduler re-runs a single workflow on an interval or cron schedule.
type FrameScheduler struct {
	runner Runner
	logger *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}

	inflight atomic.Bool
	skipped  atomic.Int64
	runs     atomic.Int64
}

// New creates a FrameScheduler.
func New(runner Runner, logger *slog.Logger) *FrameScheduler {
	return &FrameScheduler{runner: runner, logger: logger}
}

// Start schedules the workflow and launches the background loop. The same
// wc is passed to every run. spec is either a Go duration or a cron
// expression.
func (s *FrameScheduler) Start(ctx context.Context, def *schema.WorkflowDefinition, wc *wfctx.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil || s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	if interval, err := time.ParseDuration(spec); err == nil {
		if interval <= 0 {
			return fmt.Errorf("interval %q must be positive", spec)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.loop(loopCtx, def, wc, interval)
	} else {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { s.tick(ctx, def, wc) }); err != nil {
			return fmt.Errorf("parse schedule %q: %w", spec, err)
		}
		s.cron = c
		c.Start()
	}

	s.logger.Info("frame scheduler started", "workflow", def.Name, "schedule", spec)
	return nil
}

func (s *FrameScheduler) loop(ctx context.Context, def *schema.WorkflowDefinition, wc *wfctx.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx, def, wc)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, def, wc)
		}
	}
}

// tick runs the workflow once, unless the previous run is still executing.
func (s *FrameScheduler) tick(ctx context.Context, def *schema.WorkflowDefinition, wc *wfctx.Context) {
	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, previous run still in flight")
		return
	}
	defer s.inflight.Store(false)

	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Run(ctx, def, wc); err != nil {
		s.logger.Error("scheduled run failed", "workflow", def.Name, "error", err)
	}
	s.runs.Add(1)
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *FrameScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}

	s.logger.Info("frame scheduler stopped", "runs", s.runs.Load(), "skipped", s.skipped.Load())
}

// Runs reports how many runs have completed, successful or not.
func (s *FrameScheduler) Runs() int64 { return s.runs.Load() }

// Skipped reports how many ticks were dropped due to an overlapping run.
func (s *FrameScheduler) Skipped() int64 { return s.skipped.Load() }
