package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLending_CheckoutLifecycle(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)
	assert.Equal(t, t0, e.OpenedAt)
	assert.Equal(t, t0.Add(14*day), e.DueAt)

	assert.Equal(t, domain.StatusBorrowed, f.unitStatus(t, "U1", t0.Add(10*day)))
	assert.Equal(t, domain.StatusOverdue, f.unitStatus(t, "U1", t0.Add(15*day)))

	returnedAt := t0.Add(15 * day)
	closed, err := f.lending.Return(f.ctx, m1, e.ID, returnedAt)
	require.NoError(t, err)
	assert.Equal(t, returnedAt, *closed.ClosedAt)
	assert.Equal(t, domain.StatusAvailable, f.unitStatus(t, "U1", returnedAt))

	hist, err := f.query.HistoryForUnit(f.ctx, "U1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].IsOpen())
}

func TestLending_CheckoutWhileHeld(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	_, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	_, err = f.lending.Checkout(f.ctx, m2, "U1", "M2", 14)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestLending_CheckoutValidation(t *testing.T) {
	policy := domain.DefaultLendingPolicy()
	policy.MaxLoanDays = 28

	tests := []struct {
		name   string
		actor  domain.Identity
		unit   string
		holder string
		days   int
		err    error
	}{
		{"seat cannot be checked out", m1, "S1", "M1", 1, domain.ErrNotEligible},
		{"loan too long", m1, "U1", "M1", 29, domain.ErrInvalidWindow},
		{"unknown unit", m1, "U9", "M1", 7, domain.ErrNotFound},
		{"unknown holder", admin, "U1", "M9", 7, domain.ErrNotFound},
		{"suspended holder", admin, "U1", "M4", 7, domain.ErrNotEligible},
		{"member acting for another", m1, "U1", "M2", 7, domain.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, policy)
			_, err := f.lending.Checkout(f.ctx, tt.actor, tt.unit, tt.holder, tt.days)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLending_CheckoutDefaultsAndAdmin(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	e, err := f.lending.Checkout(f.ctx, admin, "U1", "M2", 0)
	require.NoError(t, err)
	assert.Equal(t, "M2", e.HolderID)
	assert.Equal(t, t0.Add(14*day), e.DueAt, "zero days falls back to the default loan period")
}

func TestLending_ReserveOverlap(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	first, err := f.lending.Reserve(f.ctx, m2, "S1", "M2", domain.Window{Start: t0.Add(time.Hour), End: t0.Add(3 * time.Hour)}, "group study")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindSeatReservation, first.Kind)
	assert.Equal(t, "group study", first.Note)

	_, err = f.lending.Reserve(f.ctx, m3, "S1", "M3", domain.Window{Start: t0.Add(2 * time.Hour), End: t0.Add(4 * time.Hour)}, "")
	assert.ErrorIs(t, err, domain.ErrOverlap)

	// Back-to-back windows are fine.
	_, err = f.lending.Reserve(f.ctx, m3, "S1", "M3", domain.Window{Start: t0.Add(3 * time.Hour), End: t0.Add(4 * time.Hour)}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusReserved, f.unitStatus(t, "S1", t0))
	assert.Equal(t, domain.StatusOccupied, f.unitStatus(t, "S1", t0.Add(2*time.Hour)))
	assert.Equal(t, domain.StatusOccupied, f.unitStatus(t, "S1", t0.Add(3*time.Hour+30*time.Minute)))
	assert.Equal(t, domain.StatusAvailable, f.unitStatus(t, "S1", t0.Add(5*time.Hour)))
}

func TestLending_ReserveValidation(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	tests := []struct {
		name   string
		unit   string
		window domain.Window
		err    error
	}{
		{"empty window", "S1", domain.Window{Start: t0.Add(time.Hour), End: t0.Add(time.Hour)}, domain.ErrInvalidWindow},
		{"reversed window", "S1", domain.Window{Start: t0.Add(2 * time.Hour), End: t0.Add(time.Hour)}, domain.ErrInvalidWindow},
		{"window in the past", "S1", domain.Window{Start: t0.Add(-2 * time.Hour), End: t0}, domain.ErrInvalidWindow},
		{"book cannot be reserved", "U1", domain.Window{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}, domain.ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lending.Reserve(f.ctx, m1, tt.unit, "M1", tt.window, "")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLending_ReserveParking(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	e, err := f.lending.Reserve(f.ctx, m1, "P1", "M1", domain.Window{Start: t0, End: t0.Add(8 * time.Hour)}, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindParkingReservation, e.Kind)
	assert.Equal(t, domain.StatusOccupied, f.unitStatus(t, "P1", t0))
}

func TestLending_RenewOverdue(t *testing.T) {
	t.Run("Default policy refuses", func(t *testing.T) {
		f := newFixture(t, domain.DefaultLendingPolicy())
		e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
		require.NoError(t, err)

		f.clock.Set(t0.Add(15 * day))
		_, err = f.lending.Renew(f.ctx, m1, e.ID, 7)
		assert.ErrorIs(t, err, domain.ErrNotEligible)
	})

	t.Run("Permissive policy extends", func(t *testing.T) {
		policy := domain.DefaultLendingPolicy()
		policy.AllowOverdueRenewal = true
		f := newFixture(t, policy)
		e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
		require.NoError(t, err)

		f.clock.Set(t0.Add(15 * day))
		renewed, err := f.lending.Renew(f.ctx, m1, e.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(21*day), renewed.DueAt)
		assert.Equal(t, 1, renewed.Renewals)
		assert.Equal(t, domain.StatusBorrowed, f.unitStatus(t, "U1", t0.Add(15*day)))
	})
}

func TestLending_RenewRules(t *testing.T) {
	policy := domain.DefaultLendingPolicy()
	policy.MaxRenewals = 1
	f := newFixture(t, policy)

	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	_, err = f.lending.Renew(f.ctx, m2, e.ID, 7)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	renewed, err := f.lending.Renew(f.ctx, m1, e.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(28*day), renewed.DueAt, "zero days renews for the default period")

	_, err = f.lending.Renew(f.ctx, m1, e.ID, 7)
	assert.ErrorIs(t, err, domain.ErrNotEligible, "renewal limit")

	_, err = f.lending.Return(f.ctx, m1, e.ID, time.Time{})
	require.NoError(t, err)
	_, err = f.lending.Renew(f.ctx, m1, e.ID, 7)
	assert.ErrorIs(t, err, domain.ErrNotActive)

	r, err := f.lending.Reserve(f.ctx, m1, "S1", "M1", domain.Window{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}, "")
	require.NoError(t, err)
	_, err = f.lending.Renew(f.ctx, m1, r.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotEligible)
}

func TestLending_DoubleReturn(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())
	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	t1 := t0.Add(3 * day)
	_, err = f.lending.Return(f.ctx, m1, e.ID, t1)
	require.NoError(t, err)

	_, err = f.lending.Return(f.ctx, m1, e.ID, t1.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	got, err := f.query.GetEntry(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, t1, *got.ClosedAt, "the first close is the only one recorded")
}

func TestLending_ReturnBeforeCheckout(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())
	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	_, err = f.lending.Return(f.ctx, m1, e.ID, t0.Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	_, err = f.lending.Return(f.ctx, m2, e.ID, t0.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLending_CancelReservation(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())
	r, err := f.lending.Reserve(f.ctx, m1, "S1", "M1", domain.Window{Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour)}, "")
	require.NoError(t, err)

	closed, err := f.lending.Cancel(f.ctx, m1, r.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, t0, *closed.ClosedAt)
	assert.Equal(t, domain.StatusAvailable, f.unitStatus(t, "S1", t0.Add(2*time.Hour)))

	// The window is free again.
	_, err = f.lending.Reserve(f.ctx, m2, "S1", "M2", domain.Window{Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour)}, "")
	assert.NoError(t, err)
}

func TestLending_Expire(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())
	r, err := f.lending.Reserve(f.ctx, m1, "S1", "M1", domain.Window{Start: t0, End: t0.Add(time.Hour)}, "")
	require.NoError(t, err)

	_, err = f.lending.Expire(f.ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	f.clock.Set(t0.Add(2 * time.Hour))
	closed, err := f.lending.Expire(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *closed.ClosedAt, "closed at the end of its window")

	_, err = f.lending.Expire(f.ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestLending_LoanLengthCeiling(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	_, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 200000)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow, "unbounded policy still caps the loan")
	assert.Equal(t, domain.StatusAvailable, f.unitStatus(t, "U1", t0))

	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 3650)
	require.NoError(t, err)
	assert.True(t, e.DueAt.After(e.OpenedAt))

	_, err = f.lending.Renew(f.ctx, m1, e.ID, 200000)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	got, err := f.query.GetEntry(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Renewals)
	assert.Equal(t, e.DueAt, got.DueAt)
}

func TestLending_CloseChecksEntryKind(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())
	co, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)
	res, err := f.lending.Reserve(f.ctx, m1, "S1", "M1", domain.Window{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}, "")
	require.NoError(t, err)

	_, err = f.lending.Return(f.ctx, m1, res.ID, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotEligible)
	_, err = f.lending.Cancel(f.ctx, m1, co.ID, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotEligible)

	open, err := f.store.OpenForHolder(f.ctx, "M1")
	require.NoError(t, err)
	assert.Len(t, open, 2, "neither entry was closed")
}

func TestLending_ConcurrentRenewalsRespectLimit(t *testing.T) {
	policy := domain.DefaultLendingPolicy()
	policy.MaxRenewals = 1
	f := newFixture(t, policy)
	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		renewed int
		refused int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lending.Renew(f.ctx, m1, e.ID, 7)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				renewed++
			} else if errors.Is(err, domain.ErrNotEligible) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, renewed)
	assert.Equal(t, n-1, refused)
	got, err := f.query.GetEntry(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Renewals)
	assert.Equal(t, t0.Add(21*day), got.DueAt)
}

func TestLending_ConcurrentCheckouts(t *testing.T) {
	f := newFixture(t, domain.DefaultLendingPolicy())

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lending.Checkout(f.ctx, admin, "U1", "M1", 7)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrUnavailable):
				losers++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, losers)

	open, err := f.store.OpenFor(f.ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestLending_PublishesEvents(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool { return ev.Type == events.EntryOpened })).Return(nil).Twice()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev events.Event) bool { return ev.Type == events.EntryClosed })).Return(errors.New("broker down")).Once()

	f := newFixtureWithPublisher(t, domain.DefaultLendingPolicy(), pub)

	e, err := f.lending.Checkout(f.ctx, m1, "U1", "M1", 14)
	require.NoError(t, err)

	_, err = f.lending.Return(f.ctx, m1, e.ID, t0.Add(day))
	assert.NoError(t, err, "a failed publish never fails the ledger write")

	_, err = f.lending.Checkout(f.ctx, m2, "U1", "M2", 14)
	require.NoError(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 3)
	pub.AssertExpectations(t)
}
