package domain

import "time"

type EntryKind string

const (
	EntryKindCheckout           EntryKind = "checkout"
	EntryKindSeatReservation    EntryKind = "seat_reservation"
	EntryKindParkingReservation EntryKind = "parking_reservation"
)

// TimeBoxed reports whether entries of this kind hold a unit for a window.
func (k EntryKind) TimeBoxed() bool {
	return k == EntryKindSeatReservation || k == EntryKindParkingReservation
}

// LedgerEntry is one checkout or reservation transaction. Entries are never
// deleted; ClosedAt is set exactly once and DueAt only moves through renewal.
type LedgerEntry struct {
	ID       string     `json:"id"`
	UnitID   string     `json:"unit_id"`
	HolderID string     `json:"holder_id"`
	Kind     EntryKind  `json:"kind"`
	OpenedAt time.Time  `json:"opened_at"`
	DueAt    time.Time  `json:"due_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Renewals int        `json:"renewals"`
	// Note holds the reservation purpose or the vehicle number.
	Note string `json:"note,omitempty"`
}

func (e LedgerEntry) IsOpen() bool {
	return e.ClosedAt == nil
}

// Window returns the interval the entry holds its unit for.
func (e LedgerEntry) Window() Window {
	return Window{Start: e.OpenedAt, End: e.DueAt}
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether [a,b) and [c,d) intersect, i.e. a < d && c < b.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
