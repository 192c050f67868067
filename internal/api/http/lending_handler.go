package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"library-ledger-backend/internal/domain"
)

type checkoutRequest struct {
	UnitID   string `json:"unitId"`
	MemberID string `json:"memberId"`
	Days     int    `json:"days"`
}

type renewRequest struct {
	Days int `json:"days"`
}

type returnRequest struct {
	ReturnDate *time.Time `json:"returnDate"`
}

type reservationRequest struct {
	UnitID    string    `json:"unitId"`
	MemberID  string    `json:"memberId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Purpose   string    `json:"purpose"`
}

// decodeOptional accepts an empty body as the zero request.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(r, v)
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	who := actor(r)
	if req.MemberID == "" {
		req.MemberID = who.ID
	}

	e, err := h.lending.Checkout(ctx, who, req.UnitID, req.MemberID, req.Days)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntry(ctx, w, http.StatusCreated, e)
}

func (h *Handler) RenewCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req renewRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	e, err := h.lending.Renew(ctx, actor(r), mux.Vars(r)["id"], req.Days)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntry(ctx, w, http.StatusOK, e)
}

func (h *Handler) ReturnCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req returnRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	who := actor(r)
	var at time.Time
	if req.ReturnDate != nil {
		// Members return now; only staff record a return at another time.
		if !who.IsAdmin() {
			handleServiceError(ctx, w, fmt.Errorf("returnDate is reserved for staff: %w", domain.ErrUnauthorized))
			return
		}
		at = req.ReturnDate.UTC()
	}

	e, err := h.lending.Return(ctx, who, mux.Vars(r)["id"], at)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntry(ctx, w, http.StatusOK, e)
}

func (h *Handler) OverdueCheckouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.query.OverdueList(ctx, h.clock.Now())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntries(ctx, w, entries)
}

func (h *Handler) DueSoonCheckouts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.query.DueSoonList(ctx, h.clock.Now())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntries(ctx, w, entries)
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	who := actor(r)
	if req.MemberID == "" {
		req.MemberID = who.ID
	}

	window := domain.Window{Start: req.StartTime.UTC(), End: req.EndTime.UTC()}
	e, err := h.lending.Reserve(ctx, who, req.UnitID, req.MemberID, window, req.Purpose)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntry(ctx, w, http.StatusCreated, e)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := h.lending.Cancel(ctx, actor(r), mux.Vars(r)["id"], time.Time{})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntry(ctx, w, http.StatusOK, e)
}
