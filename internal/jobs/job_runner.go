package jobs

import (
	"context"
	"fmt"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/metrics"
	"library-ledger-backend/internal/repository"
	"library-ledger-backend/internal/service"
)

// JobRunner coordinates the scheduled ledger jobs.
type JobRunner struct {
	ledger   repository.LedgerRepository
	units    repository.ResourceRepository
	members  repository.MemberRepository
	services *Services
	clock    clock.Clock
	policy   domain.LendingPolicy
	config   *config.Config
}

// Services holds the service dependencies needed by jobs.
type Services struct {
	Lending service.LendingService
	Query   service.QueryService
	Email   service.EmailService
}

func NewJobRunner(
	ledger repository.LedgerRepository,
	units repository.ResourceRepository,
	members repository.MemberRepository,
	services *Services,
	clk clock.Clock,
	cfg *config.Config,
) *JobRunner {
	return &JobRunner{
		ledger:   ledger,
		units:    units,
		members:  members,
		services: services,
		clock:    clk,
		policy:   cfg.Policy(),
		config:   cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery runs a job, turning a panic into a failed run.
func (jr *JobRunner) runWithRecovery(jobName string, job func(ctx context.Context) error) {
	ctx := logger.With(context.Background(), "job", jobName)
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.ErrorContext(ctx, "Job panicked", "panic", r)
		}
		metrics.ObserveJob(jobName, err)
	}()

	logger.InfoContext(ctx, "Starting job")
	if err = job(ctx); err != nil {
		logger.ErrorContext(ctx, "Job failed", "error", err)
		return
	}
	logger.InfoContext(ctx, "Job completed")
}

// RunAll runs every job once, for manual execution.
func (jr *JobRunner) RunAll() {
	jr.ExpireReservations()
	jr.SendOverdueReminders()
	jr.SendDueSoonReminders()
}

// recipient looks up who to notify about an entry. A missing member or
// unit skips that entry rather than failing the run.
func (jr *JobRunner) recipient(ctx context.Context, e domain.LedgerEntry) (*domain.Member, string, bool) {
	m, err := jr.members.GetByID(ctx, e.HolderID)
	if err != nil {
		logger.WarnContext(ctx, "Skipping entry with unknown holder", "entry_id", e.ID, "holder_id", e.HolderID, "error", err)
		return nil, "", false
	}
	label := e.UnitID
	if u, err := jr.units.GetByID(ctx, e.UnitID); err == nil && u.Label != "" {
		label = u.Label
	}
	return m, label, true
}
