package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/jobs"
	"library-ledger-backend/internal/repository/memory"
)

func newRunner(sched config.SchedulerConfig) *jobs.JobRunner {
	store := memory.NewStore(nil)
	cfg := &config.Config{Scheduler: sched}
	return jobs.NewJobRunner(store.LedgerRepository, store.ResourceRepository, store.MemberRepository, &jobs.Services{}, clock.System(), cfg)
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler(newRunner(config.SchedulerConfig{
		ExpireReservations:   "0 */5 * * * *",
		SendOverdueReminders: "0 0 3 * * *",
		SendDueSoonReminders: "-",
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.Start()
	s.Stop()
}

func TestNewScheduler_BadSpec(t *testing.T) {
	_, err := NewScheduler(newRunner(config.SchedulerConfig{ExpireReservations: "every five minutes"}))
	assert.Error(t, err)
}
