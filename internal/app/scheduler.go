package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SchedulerStatus is a snapshot of the reminder scheduler state.
// Params: running flag and configured cadence.
// Returns: status reported on the admin surface.
type SchedulerStatus struct {
	Running         bool `json:"running"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// Scheduler drives periodic reminder passes through the orchestrator.
// Params: orchestrator, tick interval, and logger.
// Returns: start/stop lifecycle around a ticker goroutine.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler builds a stopped scheduler.
// Params: orchestrator, tick interval, and logger.
// Returns: initialized scheduler; Start must be called explicitly.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger,
	}
}

// Start launches the ticker loop and runs one immediate reminder pass.
// Params: parent context bounding the loop lifetime.
// Returns: nothing; starting a running scheduler logs a warning and no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("reminder scheduler already running")
		return
	}
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	s.logger.Info("reminder scheduler started", "interval", s.interval)
	go s.loop(ctx, tickCtx, done)
}

// loop runs the immediate pass and then one pass per tick until cancelled.
// Params: pass context (parent, survives Stop so an in-flight pass can
// complete), tick context (cancelled by Stop), and completion channel.
// Returns: nothing; closes done on exit.
func (s *Scheduler) loop(passCtx, tickCtx context.Context, done chan struct{}) {
	defer close(done)

	s.runPass(passCtx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
			if tickCtx.Err() != nil {
				return
			}
			s.runPass(passCtx)
		}
	}
}

// runPass executes one reminder pass and logs failures.
// Params: pass context.
// Returns: nothing.
func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.orchestrator.ProcessReminders(ctx); err != nil {
		s.logger.Error("reminder pass failed", "error", err)
	}
}

// Stop cancels future ticks and waits for any in-flight pass to complete.
// Params: none.
// Returns: nothing; stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("reminder scheduler stopped")
}

// Status reports the current scheduler state.
// Params: none.
// Returns: running flag and interval in whole minutes.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStatus{
		Running:         s.running,
		IntervalMinutes: int(s.interval / time.Minute),
	}
}
