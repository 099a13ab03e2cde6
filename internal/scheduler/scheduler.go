// Package scheduler runs the nightly auto-match job on a cron schedule.
// Grounded on the teacher's cmd/server wiring of a background
// surge-recompute loop (internal/service/surge.go's periodic ticker),
// generalized to a calendar-based cron trigger via robfig/cron/v3 since
// spec.md §6.3 specifies wall-clock local time, not a fixed interval.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shiva/geomatch/config"
)

func timeLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// MatchRunner is the subset of the match-run orchestrator the scheduler
// depends on, kept as an interface so tests can fake it.
type MatchRunner interface {
	RunMatching(ctx context.Context, triggeredBy string) error
}

// Scheduler drives MatchRunner.RunMatching on SCHEDULER_CRON_LOCAL.
//
// running guards against the cron firing a second job while the previous
// one is still in flight — an in-process safeguard only. Horizontal
// scale-out (multiple server instances sharing one cron schedule) needs a
// distributed lock instead; spec.md §9 documents this as an accepted gap
// for a single-instance deployment.
type Scheduler struct {
	cron    *cron.Cron
	runner  MatchRunner
	logger  *zap.Logger
	running atomic.Bool
}

// New constructs a Scheduler from config, registering (but not starting)
// the nightly job. Returns nil, nil if disabled.
func New(cfg config.SchedulerConfig, runner MatchRunner, logger *zap.Logger) (*Scheduler, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	spec, err := cfg.CronSpec()
	if err != nil {
		return nil, err
	}

	loc, err := timeLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithLocation(loc))
	s := &Scheduler{cron: c, runner: runner, logger: logger}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron scheduler's background goroutine.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler: previous matching run still in flight, skipping this tick")
		return
	}
	defer s.running.Store(false)

	s.logger.Info("scheduler: starting nightly matching run")
	if err := s.runner.RunMatching(context.Background(), "scheduler"); err != nil {
		s.logger.Error("scheduler: nightly matching run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduler: nightly matching run complete")
}
