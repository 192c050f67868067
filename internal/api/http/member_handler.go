package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"library-ledger-backend/internal/domain"
)

type memberStatusRequest struct {
	Status domain.MemberStatus `json:"status"`
}

// memberID returns the {id} path variable if the caller may see that
// member's records, writing a 403 otherwise.
func memberID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !actor(r).CanActFor(id) {
		writeError(r.Context(), w, http.StatusForbidden, domain.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) MemberHoldings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	holdings, err := h.query.CurrentHoldings(ctx, id, h.clock.Now())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	entries := make([]domain.LedgerEntry, 0, len(holdings))
	for _, hd := range holdings {
		entries = append(entries, hd.Entry)
	}
	books := h.bookIDs(ctx, entries)

	out := make([]any, 0, len(holdings))
	for _, hd := range holdings {
		out = append(out, mapHolding(hd, books[hd.Entry.UnitID]))
	}
	writeJSON(ctx, w, http.StatusOK, out)
}

func (h *Handler) MemberHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	entries, err := h.query.HistoryForHolder(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntries(ctx, w, entries)
}

func (h *Handler) MemberSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	summary, err := h.query.MemberSummary(ctx, id, h.clock.Now())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, mapSummary(summary))
}

func (h *Handler) SetMemberStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req memberStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if err := h.auth.SetMemberStatus(ctx, actor(r), mux.Vars(r)["id"], req.Status); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusNoContent, nil)
}
