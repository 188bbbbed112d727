// Package scheduler runs recurring orchestration runs on a cron expression
// for daemon mode. Scan batches can outlive their interval, so a tick that
// fires while the previous run is still in flight is skipped, never queued.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/logging"
)

// RunFunc executes one orchestration run.
type RunFunc func(ctx context.Context) error

// Scheduler triggers a run function on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	inFlight bool
	lastRun  time.Time
	lastErr  error
	entryID  cron.EntryID
}

// New creates a scheduler around the run function.
func New(run RunFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		run:    run,
		logger: logging.Default().WithComponent("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the cron expression and begins ticking.
func (s *Scheduler) Start(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(errors.CodeConfiguration, "scheduler is already running")
	}

	id, err := s.cron.AddFunc(expr, s.tick)
	if err != nil {
		return errors.Wrap(errors.CodeConfiguration, "invalid cron expression", err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "cron", expr)
	return nil
}

// Stop halts ticking and cancels any in-flight run's admission of new work.
// It does not wait for a run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.cancel()
	s.running = false

	s.logger.Info("Scheduler stopped")
}

// NextRun returns when the next tick fires, or the zero time if the
// scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// LastRun returns the start time and result of the most recent run.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// InFlight reports whether a run is currently executing.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.logger.Warn("Previous run still in flight, skipping tick")
		return
	}
	s.inFlight = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	err := s.run(s.ctx)

	s.mu.Lock()
	s.inFlight = false
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled run failed", "error", err)
	}
}
