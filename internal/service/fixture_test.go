package service_test

import (
	"context"
	"testing"
	"time"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/events"
	"library-ledger-backend/internal/repository/memory"
	"library-ledger-backend/internal/service"

	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var t0 = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

var (
	admin = domain.Identity{ID: "A1", Role: domain.RoleAdmin}
	m1    = domain.Identity{ID: "M1", Role: domain.RoleMember}
	m2    = domain.Identity{ID: "M2", Role: domain.RoleMember}
	m3    = domain.Identity{ID: "M3", Role: domain.RoleMember}
)

type fixture struct {
	ctx     context.Context
	clock   *clock.Manual
	store   *memory.Store
	lending service.LendingService
	query   service.QueryService
	book    domain.ResourceUnit
	seat    domain.ResourceUnit
	spot    domain.ResourceUnit
}

func newFixture(t *testing.T, policy domain.LendingPolicy) *fixture {
	return newFixtureWithPublisher(t, policy, events.Nop())
}

func newFixtureWithPublisher(t *testing.T, policy domain.LendingPolicy, pub events.Publisher) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(t0)
	store := memory.NewStore(clk.Now)

	f := &fixture{
		ctx:     ctx,
		clock:   clk,
		store:   store,
		lending: service.NewLendingService(store.ResourceRepository, store.LedgerRepository, store.MemberRepository, clk, policy, pub),
		query:   service.NewQueryService(store.ResourceRepository, store.LedgerRepository, policy),
	}

	registry := service.NewRegistryService(store.ResourceRepository, clk)
	f.book = domain.ResourceUnit{ID: "U1", Kind: domain.UnitKindBookCopy, Label: "Dune (copy 1)", Attributes: map[string]string{domain.AttrBookID: "B1"}}
	f.seat = domain.ResourceUnit{ID: "S1", Kind: domain.UnitKindSeat, Label: "Seat A-1", Attributes: map[string]string{domain.AttrSection: "quiet"}}
	f.spot = domain.ResourceUnit{ID: "P1", Kind: domain.UnitKindParkingSpot, Label: "Spot 1", Attributes: map[string]string{domain.AttrSpotType: "electric"}}
	for _, u := range []*domain.ResourceUnit{&f.book, &f.seat, &f.spot} {
		require.NoError(t, registry.RegisterUnit(ctx, admin, u))
	}

	for _, m := range []domain.Member{
		{ID: "M1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleMember, Status: domain.MemberStatusActive},
		{ID: "M2", Name: "Grace", Email: "grace@example.com", Role: domain.RoleMember, Status: domain.MemberStatusActive},
		{ID: "M3", Name: "Linus", Email: "linus@example.com", Role: domain.RoleMember, Status: domain.MemberStatusActive},
		{ID: "M4", Name: "Ken", Email: "ken@example.com", Role: domain.RoleMember, Status: domain.MemberStatusSuspended},
	} {
		m := m
		require.NoError(t, store.Create(ctx, &m))
	}
	return f
}

func (f *fixture) unitStatus(t *testing.T, unitID string, at time.Time) domain.Status {
	t.Helper()
	view, err := f.query.UnitStatus(f.ctx, unitID, at)
	require.NoError(t, err)
	return view.Status
}
