// Package scheduler runs the booking time triggers on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/config"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
)

// Triggers is the batch API the scheduler drives.
type Triggers interface {
	StartDueBookings(ctx context.Context, now time.Time) application.TriggerResult
	CompleteDueBookings(ctx context.Context, now time.Time) application.TriggerResult
	ExpireStaleApprovals(ctx context.Context, now time.Time) application.TriggerResult
}

// Scheduler owns a cron runner with one entry per trigger. Runs of the same job never
// overlap.
type Scheduler struct {
	cron     *cron.Cron
	triggers Triggers
	clock    clock.Clock
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	entries  map[string]cron.EntryID
}

// New registers the start, complete and expire jobs.
func New(triggers Triggers, clk clock.Clock, cfg config.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	cronLog := cronLogger{l: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		triggers: triggers,
		clock:    clk,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]cron.EntryID),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context, time.Time) application.TriggerResult
	}{
		{"start", cfg.StartSpec, triggers.StartDueBookings},
		{"complete", cfg.CompleteSpec, triggers.CompleteDueBookings},
		{"expire", cfg.ExpireSpec, triggers.ExpireStaleApprovals},
	}
	for _, j := range jobs {
		id, err := s.cron.AddFunc(j.spec, s.job(j.name, j.run))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid %s schedule %q: %w", j.name, j.spec, err)
		}
		s.entries[j.name] = id
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.entries)))
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Next returns the next run time of a job.
func (s *Scheduler) Next(job string) (time.Time, bool) {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) job(name string, run func(context.Context, time.Time) application.TriggerResult) func() {
	return func() {
		result := run(s.ctx, s.clock.Now())
		if result.Err != nil {
			s.logger.Warn("scheduled job had failures",
				zap.String("job", name),
				zap.Int("processed", result.Processed),
				zap.Int("failed", result.Failed),
				zap.Strings("errors", result.Errors()),
			)
		}
	}
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
