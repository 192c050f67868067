package service

import (
	"context"
	"time"

	"library-ledger-backend/internal/domain"
)

type RegistryService interface {
	RegisterUnit(ctx context.Context, actor domain.Identity, unit *domain.ResourceUnit) error
	GetUnit(ctx context.Context, id string) (*domain.ResourceUnit, error)
	ListUnits(ctx context.Context, filter domain.UnitFilter) ([]domain.ResourceUnit, error)
	DecommissionUnit(ctx context.Context, actor domain.Identity, id string) error
}

// LendingService is the only writer of the ledger. Every call names the
// acting identity explicitly and reads the clock once.
type LendingService interface {
	Checkout(ctx context.Context, actor domain.Identity, unitID, holderID string, durationDays int) (*domain.LedgerEntry, error)
	Reserve(ctx context.Context, actor domain.Identity, unitID, holderID string, window domain.Window, note string) (*domain.LedgerEntry, error)
	Renew(ctx context.Context, actor domain.Identity, entryID string, extraDays int) (*domain.LedgerEntry, error)
	Return(ctx context.Context, actor domain.Identity, entryID string, at time.Time) (*domain.LedgerEntry, error)
	Cancel(ctx context.Context, actor domain.Identity, entryID string, at time.Time) (*domain.LedgerEntry, error)
	// Expire closes a lapsed reservation at its window end. It is the
	// scheduler's entry point and acts as the system, not as a member.
	Expire(ctx context.Context, entryID string) (*domain.LedgerEntry, error)
}

type QueryService interface {
	GetEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error)
	CurrentHoldings(ctx context.Context, holderID string, now time.Time) ([]domain.Holding, error)
	HistoryForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error)
	HistoryForUnit(ctx context.Context, unitID string) ([]domain.LedgerEntry, error)
	OverdueList(ctx context.Context, now time.Time) ([]domain.LedgerEntry, error)
	DueSoonList(ctx context.Context, now time.Time) ([]domain.LedgerEntry, error)
	UnitStatus(ctx context.Context, unitID string, now time.Time) (*domain.UnitView, error)
	UnitBoard(ctx context.Context, filter domain.UnitFilter, now time.Time) ([]domain.UnitView, error)
	MemberSummary(ctx context.Context, holderID string, now time.Time) (*domain.MemberSummary, error)
}

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*domain.Member, error)
	Provision(ctx context.Context, name, email, password string, role domain.Role) (*domain.Member, error)
	Login(ctx context.Context, email, password string) (*domain.Member, string, time.Time, error)
	Me(ctx context.Context, memberID string) (*domain.Member, error)
	SetMemberStatus(ctx context.Context, actor domain.Identity, memberID string, status domain.MemberStatus) error
}

type EmailService interface {
	SendOverdueReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time, fineCents int32) error
	SendDueSoonReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time) error
	SendReservationExpired(ctx context.Context, to, name, unitLabel string, endedAt time.Time) error
}
