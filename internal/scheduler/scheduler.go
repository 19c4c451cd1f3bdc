// Package scheduler repeats ingest runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/logger"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a standard 5-field cron spec (descriptors such as
// "@hourly" and "@every 30m" also work). Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	job      cron.Job
	run      Job
	timeout  time.Duration
	logger   zerolog.Logger

	ctx context.Context
}

// New parses spec and wraps run. A zero timeout leaves runs unbounded.
func New(spec string, run Job, timeout time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log = logger.Component(log, "scheduler")
	cronLog := cronLogger{log}

	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLog)),
		schedule: schedule,
		spec:     spec,
		run:      run,
		timeout:  timeout,
		logger:   log,
		ctx:      context.Background(),
	}
	s.job = cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(s.execute))
	s.cron.Schedule(schedule, s.job)
	return s, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run starts the schedule and blocks until ctx is done, then waits for an
// in-flight run to finish. Runs receive ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Time("next", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()

	s.logger.Info().Msg("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// RunNow triggers a run in the background, subject to the overlap guard.
func (s *Scheduler) RunNow() {
	go s.job.Run()
}

func (s *Scheduler) execute() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.run(ctx); err != nil {
		s.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled run failed")
		return
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("scheduled run completed")
}

// cronLogger adapts zerolog to cron.Logger. cron's own chatter goes to debug.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
