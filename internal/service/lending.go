package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/events"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/metrics"
	"library-ledger-backend/internal/repository"
	"library-ledger-backend/internal/status"
)

const (
	day = 24 * time.Hour
	// maxLoanDays bounds any single loan or renewal, whatever the policy.
	maxLoanDays = 3650
)

type lendingService struct {
	unitRepo   repository.ResourceRepository
	ledgerRepo repository.LedgerRepository
	memberRepo repository.MemberRepository
	clock      clock.Clock
	policy     domain.LendingPolicy
	publisher  events.Publisher
}

func NewLendingService(
	unitRepo repository.ResourceRepository,
	ledgerRepo repository.LedgerRepository,
	memberRepo repository.MemberRepository,
	clk clock.Clock,
	policy domain.LendingPolicy,
	publisher events.Publisher,
) LendingService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &lendingService{
		unitRepo:   unitRepo,
		ledgerRepo: ledgerRepo,
		memberRepo: memberRepo,
		clock:      clk,
		policy:     policy,
		publisher:  publisher,
	}
}

func (s *lendingService) Checkout(ctx context.Context, actor domain.Identity, unitID, holderID string, durationDays int) (entry *domain.LedgerEntry, err error) {
	const op = "checkout"
	logger.EnterMethod(ctx, "LendingService.Checkout", "unit_id", unitID, "holder_id", holderID, "days", durationDays)
	defer func() { s.finish(ctx, op, domain.EntryKindCheckout, actor, events.EntryOpened, entry, err) }()

	if !actor.CanActFor(holderID) {
		return nil, domain.ErrUnauthorized
	}
	now := s.clock.Now()

	unit, err := s.unitRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Kind != domain.UnitKindBookCopy {
		return nil, fmt.Errorf("%s units are reserved, not checked out: %w", unit.Kind, domain.ErrNotEligible)
	}

	if durationDays <= 0 {
		durationDays = s.policy.DefaultLoanDays
	}
	if err := s.checkLoanDays("loan", durationDays); err != nil {
		return nil, err
	}

	if err := s.checkHolder(ctx, holderID); err != nil {
		return nil, err
	}

	e := &domain.LedgerEntry{
		UnitID:   unitID,
		HolderID: holderID,
		Kind:     domain.EntryKindCheckout,
		OpenedAt: now,
		DueAt:    now.Add(time.Duration(durationDays) * day),
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *lendingService) Reserve(ctx context.Context, actor domain.Identity, unitID, holderID string, window domain.Window, note string) (entry *domain.LedgerEntry, err error) {
	const op = "reserve"
	var kind domain.EntryKind
	logger.EnterMethod(ctx, "LendingService.Reserve", "unit_id", unitID, "holder_id", holderID, "start", window.Start, "end", window.End)
	defer func() { s.finish(ctx, op, kind, actor, events.EntryOpened, entry, err) }()

	if !actor.CanActFor(holderID) {
		return nil, domain.ErrUnauthorized
	}
	now := s.clock.Now()

	if !window.Valid() {
		return nil, fmt.Errorf("window must start before it ends: %w", domain.ErrInvalidWindow)
	}
	if !window.End.After(now) {
		return nil, fmt.Errorf("window already ended: %w", domain.ErrInvalidWindow)
	}

	unit, err := s.unitRepo.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !unit.TimeBoxed() {
		return nil, fmt.Errorf("%s units are checked out, not reserved: %w", unit.Kind, domain.ErrNotEligible)
	}
	kind = unit.ReservationKind()

	if err := s.checkHolder(ctx, holderID); err != nil {
		return nil, err
	}

	e := &domain.LedgerEntry{
		UnitID:   unitID,
		HolderID: holderID,
		Kind:     kind,
		OpenedAt: window.Start,
		DueAt:    window.End,
		Note:     note,
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *lendingService) Renew(ctx context.Context, actor domain.Identity, entryID string, extraDays int) (entry *domain.LedgerEntry, err error) {
	const op = "renew"
	var kind domain.EntryKind
	logger.EnterMethod(ctx, "LendingService.Renew", "entry_id", entryID, "days", extraDays)
	defer func() { s.finish(ctx, op, kind, actor, events.EntryRenewed, entry, err) }()

	current, err := s.ledgerRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	kind = current.Kind
	if !actor.CanActFor(current.HolderID) {
		return nil, domain.ErrUnauthorized
	}
	if !current.IsOpen() {
		return nil, domain.ErrNotActive
	}
	if current.Kind != domain.EntryKindCheckout {
		return nil, fmt.Errorf("only checkouts renew: %w", domain.ErrNotEligible)
	}

	now := s.clock.Now()
	if now.After(current.DueAt) && !s.policy.AllowOverdueRenewal {
		return nil, fmt.Errorf("checkout is overdue: %w", domain.ErrNotEligible)
	}
	if s.policy.MaxRenewals > 0 && current.Renewals >= s.policy.MaxRenewals {
		return nil, fmt.Errorf("renewal limit of %d reached: %w", s.policy.MaxRenewals, domain.ErrNotEligible)
	}

	if extraDays <= 0 {
		extraDays = s.policy.DefaultLoanDays
	}
	if err := s.checkLoanDays("renewal", extraDays); err != nil {
		return nil, err
	}

	limits := repository.RenewalLimits{MaxRenewals: s.policy.MaxRenewals}
	if !s.policy.AllowOverdueRenewal {
		limits.OverdueAt = now
	}
	return s.ledgerRepo.Extend(ctx, entryID, time.Duration(extraDays)*day, limits)
}

// Return closes a checkout.
func (s *lendingService) Return(ctx context.Context, actor domain.Identity, entryID string, at time.Time) (*domain.LedgerEntry, error) {
	return s.close(ctx, "return", false, actor, entryID, at)
}

// Cancel closes a seat or parking reservation.
func (s *lendingService) Cancel(ctx context.Context, actor domain.Identity, entryID string, at time.Time) (*domain.LedgerEntry, error) {
	return s.close(ctx, "cancel", true, actor, entryID, at)
}

func (s *lendingService) close(ctx context.Context, op string, reservation bool, actor domain.Identity, entryID string, at time.Time) (entry *domain.LedgerEntry, err error) {
	var kind domain.EntryKind
	logger.EnterMethod(ctx, "LendingService.close", "op", op, "entry_id", entryID)
	defer func() { s.finish(ctx, op, kind, actor, events.EntryClosed, entry, err) }()

	current, err := s.ledgerRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	kind = current.Kind
	if !actor.CanActFor(current.HolderID) {
		return nil, domain.ErrUnauthorized
	}
	if current.Kind.TimeBoxed() != reservation {
		return nil, fmt.Errorf("cannot %s a %s: %w", op, current.Kind, domain.ErrNotEligible)
	}
	if !current.IsOpen() {
		return nil, domain.ErrAlreadyClosed
	}

	if at.IsZero() {
		at = s.clock.Now()
	}
	if current.Kind == domain.EntryKindCheckout && at.Before(current.OpenedAt) {
		return nil, fmt.Errorf("return precedes checkout: %w", domain.ErrInvalidWindow)
	}

	return s.ledgerRepo.Close(ctx, entryID, at)
}

func (s *lendingService) Expire(ctx context.Context, entryID string) (entry *domain.LedgerEntry, err error) {
	const op = "expire"
	var kind domain.EntryKind
	system := domain.Identity{ID: "system", Role: domain.RoleAdmin}
	defer func() { s.finish(ctx, op, kind, system, events.EntryClosed, entry, err) }()

	current, err := s.ledgerRepo.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	kind = current.Kind
	if !current.IsOpen() {
		return nil, domain.ErrAlreadyClosed
	}
	if !status.Lapsed(*current, s.clock.Now()) {
		return nil, fmt.Errorf("reservation window has not ended: %w", domain.ErrNotEligible)
	}
	return s.ledgerRepo.Close(ctx, entryID, current.DueAt)
}

func (s *lendingService) checkLoanDays(what string, days int) error {
	limit := maxLoanDays
	if s.policy.MaxLoanDays > 0 && s.policy.MaxLoanDays < limit {
		limit = s.policy.MaxLoanDays
	}
	if days > limit {
		return fmt.Errorf("%s of %d days exceeds %d: %w", what, days, limit, domain.ErrInvalidWindow)
	}
	return nil
}

func (s *lendingService) checkHolder(ctx context.Context, holderID string) error {
	m, err := s.memberRepo.GetByID(ctx, holderID)
	if err != nil {
		return err
	}
	if m.Status != domain.MemberStatusActive {
		return fmt.Errorf("member is %s: %w", m.Status, domain.ErrNotEligible)
	}
	return nil
}

// finish records the outcome of a coordinator call: exit log, counter and,
// for committed changes, the ledger event.
func (s *lendingService) finish(ctx context.Context, op string, kind domain.EntryKind, actor domain.Identity, evType events.Type, entry *domain.LedgerEntry, err error) {
	metrics.ObserveLedgerOp(op, kind, err)
	if err != nil {
		logger.ExitMethodWithError(ctx, "LendingService."+op, err, IsRejection(err), "actor_id", actor.ID)
		return
	}
	logger.LedgerChange(ctx, op, entry.ID, entry.UnitID, entry.HolderID, "actor_id", actor.ID, "due_at", entry.DueAt)

	ev := events.FromEntry(evType, *entry, actor, s.clock.Now())
	if perr := s.publisher.Publish(ctx, ev); perr != nil {
		logger.WarnContext(ctx, "Ledger event not published", "type", evType, "entry_id", entry.ID, "error", perr)
	}
}

// IsRejection reports whether err is a domain refusal rather than a fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrUnavailable,
		domain.ErrOverlap,
		domain.ErrInvalidWindow,
		domain.ErrAlreadyClosed,
		domain.ErrNotActive,
		domain.ErrNotEligible,
		domain.ErrUnauthorized,
		domain.ErrDuplicate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
