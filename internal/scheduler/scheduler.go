package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"library-ledger-backend/internal/jobs"
	"library-ledger-backend/internal/logger"
)

// Scheduler runs the ledger jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a UTC, seconds-precision scheduler. It fails if any
// configured schedule does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	for _, job := range []struct {
		name string
		spec string
		run  func()
	}{
		{"ExpireReservations", cfg.ExpireReservations, s.jobs.ExpireReservations},
		{"SendOverdueReminders", cfg.SendOverdueReminders, s.jobs.SendOverdueReminders},
		{"SendDueSoonReminders", cfg.SendDueSoonReminders, s.jobs.SendDueSoonReminders},
	} {
		if job.spec == "" || job.spec == "-" {
			logger.Info("Job disabled", "job", job.name)
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			logger.Error("Failed to register job", "job", job.name, "schedule", job.spec, "error", err)
			return err
		}
		logger.Debug("Registered job", "job", job.name, "schedule", job.spec)
	}

	logger.Info("All cron jobs registered successfully", "count", len(s.cron.Entries()))
	return nil
}

func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
