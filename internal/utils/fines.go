package utils

import (
	"time"

	"library-ledger-backend/internal/domain"
)

// FineBreakdown explains how a fine was computed.
type FineBreakdown struct {
	OverdueDays int
	PerDayCents int32
	Capped      bool
	TotalCents  int32
}

// OverdueDays returns how many started days now is past due. A checkout due
// at 09:00 and seen at 09:01 the next day is two days late; exactly at the due
// instant it is zero.
func OverdueDays(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	late := now.Sub(due)
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// CalculateFine computes the fine owed for one entry at now. Only open
// checkouts accrue fines; reservations and returned books never do.
func CalculateFine(e domain.LedgerEntry, now time.Time, policy domain.LendingPolicy) FineBreakdown {
	fb := FineBreakdown{PerDayCents: policy.FinePerDayCents}
	if e.Kind != domain.EntryKindCheckout || !e.IsOpen() {
		return fb
	}

	fb.OverdueDays = OverdueDays(e.DueAt, now)
	total := int64(fb.OverdueDays) * int64(policy.FinePerDayCents)
	if policy.MaxFineCents > 0 && total > int64(policy.MaxFineCents) {
		total = int64(policy.MaxFineCents)
		fb.Capped = true
	}
	fb.TotalCents = int32(total)
	return fb
}

// TotalFines sums the fines of entries at now.
func TotalFines(entries []domain.LedgerEntry, now time.Time, policy domain.LendingPolicy) int32 {
	var total int32
	for _, e := range entries {
		total += CalculateFine(e, now, policy).TotalCents
	}
	return total
}
