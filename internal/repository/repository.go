package repository

import (
	"context"
	"time"

	"library-ledger-backend/internal/domain"
)

type ResourceRepository interface {
	Register(ctx context.Context, unit *domain.ResourceUnit) error
	GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error)
	List(ctx context.Context, filter domain.UnitFilter) ([]domain.ResourceUnit, error)
	// Decommission soft-deletes the unit. It fails with ErrUnavailable while
	// the unit has open entries.
	Decommission(ctx context.Context, id string, at time.Time) error
}

// RenewalLimits guard an Extend. Zero values disable a check.
type RenewalLimits struct {
	MaxRenewals int
	// OverdueAt refuses the renewal when the entry is overdue at this time.
	OverdueAt time.Time
}

// LedgerRepository is the append-oriented store of checkout and reservation
// entries. Append is the atomic check-then-append primitive: implementations
// must make the availability check and the insert a single step per unit.
type LedgerRepository interface {
	// Append assigns ID and, when zero, OpenedAt. Checkouts fail with
	// ErrUnavailable if the unit has any open entry; reservations fail with
	// ErrOverlap if an open entry intersects [OpenedAt, DueAt).
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	Close(ctx context.Context, entryID string, closedAt time.Time) (*domain.LedgerEntry, error)
	// Extend pushes DueAt forward and counts the renewal. The limits are
	// checked in the same step as the update; a breach is ErrNotEligible.
	Extend(ctx context.Context, entryID string, extra time.Duration, limits RenewalLimits) (*domain.LedgerEntry, error)
	Get(ctx context.Context, entryID string) (*domain.LedgerEntry, error)

	ActiveFor(ctx context.Context, unitID string) (*domain.LedgerEntry, error)
	OpenFor(ctx context.Context, unitID string) ([]domain.LedgerEntry, error)
	OpenForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error)
	HistoryForUnit(ctx context.Context, unitID string) ([]domain.LedgerEntry, error)
	HistoryForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error)

	OpenCheckoutsDueBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error)
	OpenReservationsEndedBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error)
}

type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	GetByEmail(ctx context.Context, email string) (*domain.Member, error)
	UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error
}
