package http

import (
	"time"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/status"
)

type checkoutResponse struct {
	ID             string        `json:"id"`
	UnitID         string        `json:"unitId"`
	BookID         string        `json:"bookId,omitempty"`
	MemberID       string        `json:"memberId"`
	CheckedOutDate time.Time     `json:"checkedOutDate"`
	DueDate        time.Time     `json:"dueDate"`
	ReturnDate     *time.Time    `json:"returnDate,omitempty"`
	Renewals       int           `json:"renewals"`
	Status         domain.Status `json:"status"`
	DueSoon        bool          `json:"isNearlyDue,omitempty"`
}

type reservationResponse struct {
	ID        string           `json:"id"`
	UnitID    string           `json:"unitId"`
	Kind      domain.EntryKind `json:"kind"`
	MemberID  string           `json:"memberId"`
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Purpose   string           `json:"purpose,omitempty"`
	ClosedAt  *time.Time       `json:"closedAt,omitempty"`
	Status    domain.Status    `json:"status"`
}

type unitResponse struct {
	ID               string            `json:"id"`
	Kind             domain.UnitKind   `json:"kind"`
	Label            string            `json:"label"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	CreatedOn        time.Time         `json:"createdOn"`
	DecommissionedOn *time.Time        `json:"decommissionedOn,omitempty"`
	Status           domain.Status     `json:"status,omitempty"`
	Current          any               `json:"current,omitempty"`
}

type memberResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Role      domain.Role         `json:"role"`
	Status    domain.MemberStatus `json:"status"`
	CreatedOn time.Time           `json:"createdOn"`
}

type summaryResponse struct {
	MemberID           string `json:"memberId"`
	BooksCheckedOut    int32  `json:"booksCheckedOut"`
	OverdueBooks       int32  `json:"overdueBooks"`
	ActiveReservations int32  `json:"activeReservations"`
	FeesDueCents       int32  `json:"feesDueCents"`
	TotalCheckouts     int32  `json:"totalCheckouts"`
}

// mapEntry renders an entry in the checkout or reservation wire shape with
// its status at now. bookID only applies to checkouts and may be empty.
func mapEntry(e domain.LedgerEntry, now time.Time, bookID string) any {
	st := status.ForEntry(e, now)
	if e.Kind == domain.EntryKindCheckout {
		return mapCheckout(e, st, bookID)
	}
	return mapReservation(e, st)
}

func mapHolding(h domain.Holding, bookID string) any {
	if h.Entry.Kind == domain.EntryKindCheckout {
		resp := mapCheckout(h.Entry, h.Status, bookID)
		resp.DueSoon = h.DueSoon
		return resp
	}
	return mapReservation(h.Entry, h.Status)
}

func mapCheckout(e domain.LedgerEntry, st domain.Status, bookID string) checkoutResponse {
	return checkoutResponse{
		ID:             e.ID,
		UnitID:         e.UnitID,
		BookID:         bookID,
		MemberID:       e.HolderID,
		CheckedOutDate: e.OpenedAt,
		DueDate:        e.DueAt,
		ReturnDate:     e.ClosedAt,
		Renewals:       e.Renewals,
		Status:         st,
	}
}

func mapReservation(e domain.LedgerEntry, st domain.Status) reservationResponse {
	return reservationResponse{
		ID:        e.ID,
		UnitID:    e.UnitID,
		Kind:      e.Kind,
		MemberID:  e.HolderID,
		StartTime: e.OpenedAt,
		EndTime:   e.DueAt,
		Purpose:   e.Note,
		ClosedAt:  e.ClosedAt,
		Status:    st,
	}
}

func mapUnit(u domain.ResourceUnit) unitResponse {
	return unitResponse{
		ID:               u.ID,
		Kind:             u.Kind,
		Label:            u.Label,
		Attributes:       u.Attributes,
		CreatedOn:        u.CreatedOn,
		DecommissionedOn: u.DecommissionedOn,
	}
}

func mapUnitView(v domain.UnitView, now time.Time) unitResponse {
	resp := mapUnit(v.Unit)
	resp.Status = v.Status
	if v.Current != nil {
		resp.Current = mapEntry(*v.Current, now, v.Unit.Attr(domain.AttrBookID))
	}
	return resp
}

func mapMember(m *domain.Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Role:      m.Role,
		Status:    m.Status,
		CreatedOn: m.CreatedOn,
	}
}

func mapSummary(s *domain.MemberSummary) summaryResponse {
	return summaryResponse{
		MemberID:           s.MemberID,
		BooksCheckedOut:    s.BooksCheckedOut,
		OverdueBooks:       s.OverdueBooks,
		ActiveReservations: s.ActiveReservations,
		FeesDueCents:       s.FeesDueCents,
		TotalCheckouts:     s.TotalCheckouts,
	}
}
