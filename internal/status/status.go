// Package status derives the live status of units and ledger entries from
// ledger state and a caller-supplied instant. Nothing it computes is stored.
package status

import (
	"context"
	"math"
	"time"

	"library-ledger-backend/internal/domain"
)

const day = 24 * time.Hour

// Lapsed reports whether a reservation's window has fully passed at now.
// Lapsed reservations no longer hold their unit even before the expiry job
// closes them.
func Lapsed(e domain.LedgerEntry, now time.Time) bool {
	return e.Kind.TimeBoxed() && now.After(e.DueAt)
}

// Current picks the entry that holds the unit at now out of the unit's open
// entries: the earliest-opened one that has not lapsed.
func Current(open []domain.LedgerEntry, now time.Time) *domain.LedgerEntry {
	var current *domain.LedgerEntry
	for i := range open {
		e := open[i]
		if !e.IsOpen() || Lapsed(e, now) {
			continue
		}
		if current == nil || e.OpenedAt.Before(current.OpenedAt) {
			current = &open[i]
		}
	}
	return current
}

// Resolve derives a unit status from its open entries.
func Resolve(open []domain.LedgerEntry, now time.Time) domain.Status {
	current := Current(open, now)
	if current == nil {
		return domain.StatusAvailable
	}
	return ForEntry(*current, now)
}

// ForEntry projects a single entry. Overdue requires now strictly after
// DueAt; a reservation is occupied for OpenedAt <= now <= DueAt.
func ForEntry(e domain.LedgerEntry, now time.Time) domain.Status {
	if !e.IsOpen() {
		if e.Kind == domain.EntryKindCheckout {
			return domain.StatusReturned
		}
		return domain.StatusClosed
	}
	if e.Kind == domain.EntryKindCheckout {
		if now.After(e.DueAt) {
			return domain.StatusOverdue
		}
		return domain.StatusBorrowed
	}
	if Lapsed(e, now) {
		return domain.StatusClosed
	}
	if !now.Before(e.OpenedAt) {
		return domain.StatusOccupied
	}
	return domain.StatusReserved
}

// DaysUntil counts whole days from now to t, rounding up.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(float64(t.Sub(now)) / float64(day)))
}

// DueSoon reports an open checkout that is not overdue and falls due within
// the given number of days.
func DueSoon(e domain.LedgerEntry, now time.Time, days int) bool {
	if !e.IsOpen() || e.Kind != domain.EntryKindCheckout || now.After(e.DueAt) {
		return false
	}
	d := DaysUntil(e.DueAt, now)
	return d >= 0 && d <= days
}

// OpenEntryReader is the slice of the ledger store the resolver needs.
type OpenEntryReader interface {
	OpenFor(ctx context.Context, unitID string) ([]domain.LedgerEntry, error)
}

// Resolver reads the ledger store and resolves unit status.
type Resolver struct {
	ledger OpenEntryReader
}

func NewResolver(ledger OpenEntryReader) *Resolver {
	return &Resolver{ledger: ledger}
}

func (r *Resolver) Resolve(ctx context.Context, unit domain.ResourceUnit, now time.Time) (domain.Status, *domain.LedgerEntry, error) {
	open, err := r.ledger.OpenFor(ctx, unit.ID)
	if err != nil {
		return "", nil, err
	}
	current := Current(open, now)
	if current == nil {
		return domain.StatusAvailable, nil, nil
	}
	return ForEntry(*current, now), current, nil
}
