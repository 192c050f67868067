package domain

type Status string

const (
	StatusAvailable Status = "available"
	StatusBorrowed  Status = "borrowed"
	StatusOverdue   Status = "overdue"
	StatusReserved  Status = "reserved"
	StatusOccupied  Status = "occupied"

	// Entry-level projections of closed entries.
	StatusReturned Status = "returned"
	StatusClosed   Status = "closed"
)
