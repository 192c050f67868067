package domain

// Holding pairs an open entry with its status at query time.
type Holding struct {
	Entry   LedgerEntry `json:"entry"`
	Status  Status      `json:"status"`
	DueSoon bool        `json:"due_soon"`
}

// UnitView is the resource-centric projection of a unit.
type UnitView struct {
	Unit    ResourceUnit `json:"unit"`
	Status  Status       `json:"status"`
	Current *LedgerEntry `json:"current,omitempty"`
}

// MemberSummary aggregates a member's lending picture. Nothing here is
// stored; it is rebuilt from the ledger on each read.
type MemberSummary struct {
	MemberID           string `json:"member_id"`
	BooksCheckedOut    int32  `json:"books_checked_out"`
	OverdueBooks       int32  `json:"overdue_books"`
	ActiveReservations int32  `json:"active_reservations"`
	FeesDueCents       int32  `json:"fees_due_cents"`
	TotalCheckouts     int32  `json:"total_checkouts"`
}
