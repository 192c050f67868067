package service

import (
	"context"
	"time"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/repository"
	"library-ledger-backend/internal/status"
	"library-ledger-backend/internal/utils"
)

// queryService answers read-only projections. It takes now from the caller
// so a single request sees one consistent instant.
type queryService struct {
	unitRepo   repository.ResourceRepository
	ledgerRepo repository.LedgerRepository
	resolver   *status.Resolver
	policy     domain.LendingPolicy
}

func NewQueryService(unitRepo repository.ResourceRepository, ledgerRepo repository.LedgerRepository, policy domain.LendingPolicy) QueryService {
	return &queryService{
		unitRepo:   unitRepo,
		ledgerRepo: ledgerRepo,
		resolver:   status.NewResolver(ledgerRepo),
		policy:     policy,
	}
}

func (s *queryService) GetEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	return s.ledgerRepo.Get(ctx, entryID)
}

// CurrentHoldings lists what the holder has right now. Lapsed reservations
// still waiting for the expiry job are left out.
func (s *queryService) CurrentHoldings(ctx context.Context, holderID string, now time.Time) ([]domain.Holding, error) {
	open, err := s.ledgerRepo.OpenForHolder(ctx, holderID)
	if err != nil {
		return nil, err
	}
	holdings := make([]domain.Holding, 0, len(open))
	for _, e := range open {
		if status.Lapsed(e, now) {
			continue
		}
		holdings = append(holdings, domain.Holding{
			Entry:   e,
			Status:  status.ForEntry(e, now),
			DueSoon: status.DueSoon(e, now, s.policy.DueSoonDays),
		})
	}
	return holdings, nil
}

func (s *queryService) HistoryForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error) {
	return s.ledgerRepo.HistoryForHolder(ctx, holderID)
}

func (s *queryService) HistoryForUnit(ctx context.Context, unitID string) ([]domain.LedgerEntry, error) {
	return s.ledgerRepo.HistoryForUnit(ctx, unitID)
}

func (s *queryService) OverdueList(ctx context.Context, now time.Time) ([]domain.LedgerEntry, error) {
	return s.ledgerRepo.OpenCheckoutsDueBefore(ctx, now)
}

func (s *queryService) DueSoonList(ctx context.Context, now time.Time) ([]domain.LedgerEntry, error) {
	horizon := now.Add(time.Duration(s.policy.DueSoonDays)*day + time.Nanosecond)
	candidates, err := s.ledgerRepo.OpenCheckoutsDueBefore(ctx, horizon)
	if err != nil {
		return nil, err
	}
	var due []domain.LedgerEntry
	for _, e := range candidates {
		if status.DueSoon(e, now, s.policy.DueSoonDays) {
			due = append(due, e)
		}
	}
	return due, nil
}

func (s *queryService) UnitStatus(ctx context.Context, unitID string, now time.Time) (*domain.UnitView, error) {
	unit, err := s.unitRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *unit, now)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// UnitBoard resolves every matching unit, e.g. a seat map for one section.
func (s *queryService) UnitBoard(ctx context.Context, filter domain.UnitFilter, now time.Time) ([]domain.UnitView, error) {
	units, err := s.unitRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	board := make([]domain.UnitView, 0, len(units))
	for _, u := range units {
		view, err := s.view(ctx, u, now)
		if err != nil {
			return nil, err
		}
		board = append(board, view)
	}
	return board, nil
}

func (s *queryService) view(ctx context.Context, unit domain.ResourceUnit, now time.Time) (domain.UnitView, error) {
	st, current, err := s.resolver.Resolve(ctx, unit, now)
	if err != nil {
		return domain.UnitView{}, err
	}
	return domain.UnitView{Unit: unit, Status: st, Current: current}, nil
}

func (s *queryService) MemberSummary(ctx context.Context, holderID string, now time.Time) (*domain.MemberSummary, error) {
	history, err := s.ledgerRepo.HistoryForHolder(ctx, holderID)
	if err != nil {
		return nil, err
	}

	summary := &domain.MemberSummary{MemberID: holderID}
	var open []domain.LedgerEntry
	for _, e := range history {
		if e.Kind == domain.EntryKindCheckout {
			summary.TotalCheckouts++
		}
		if !e.IsOpen() {
			continue
		}
		open = append(open, e)
		switch status.ForEntry(e, now) {
		case domain.StatusBorrowed:
			summary.BooksCheckedOut++
		case domain.StatusOverdue:
			summary.BooksCheckedOut++
			summary.OverdueBooks++
		case domain.StatusReserved, domain.StatusOccupied:
			summary.ActiveReservations++
		}
	}
	summary.FeesDueCents = utils.TotalFines(open, now, s.policy)
	return summary, nil
}
