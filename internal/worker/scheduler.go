package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a periodic maintenance task.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs jobs on cron schedules. A run that is still going when its
// next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewScheduler(metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(&logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		metrics: metrics,
		logger:  logger,
	}
}

// Add registers job. ctx bounds every run of the job.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name, job.Schedule, err)
	}
	s.logger.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job scheduled")
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := job.Run(ctx)
	s.metrics.JobRun(job.Name, err)

	if err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("scheduled job failed")
		return
	}
	s.logger.Info().
		Str("job", job.Name).
		Int("affected", n).
		Dur("took", time.Since(start)).
		Msg("scheduled job finished")
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
