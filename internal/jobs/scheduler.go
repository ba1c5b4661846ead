package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	log      *zap.Logger
	schedule string
}

// NewScheduler runs the overdue sweep on a standard five-field cron schedule,
// evaluated in the jobs' business timezone. A panicking run is recovered.
func NewScheduler(jobs *Jobs, log *zap.Logger, schedule string) *Scheduler {
	l := cronLogger{s: log.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLocation(jobs.loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l)),
	)
	return &Scheduler{cron: c, jobs: jobs, log: log, schedule: schedule}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.SweepOverdue); err != nil {
		return fmt.Errorf("schedule overdue sweep %q: %w", s.schedule, err)
	}
	s.log.Info("scheduled overdue sweep", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
