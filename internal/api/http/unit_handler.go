package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"library-ledger-backend/internal/domain"
)

type registerUnitRequest struct {
	ID         string            `json:"id"`
	Kind       domain.UnitKind   `json:"kind"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes"`
}

// ListUnits returns the status board for the units matching the query
// filters kind, bookId, section and spotType.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := domain.UnitFilter{
		Kind:     domain.UnitKind(q.Get("kind")),
		BookID:   q.Get("bookId"),
		Section:  q.Get("section"),
		SpotType: domain.SpotType(q.Get("spotType")),
	}

	now := h.clock.Now()
	board, err := h.query.UnitBoard(ctx, filter, now)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	out := make([]unitResponse, 0, len(board))
	for _, v := range board {
		out = append(out, mapUnitView(v, now))
	}
	writeJSON(ctx, w, http.StatusOK, out)
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock.Now()
	view, err := h.query.UnitStatus(ctx, mux.Vars(r)["id"], now)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, mapUnitView(*view, now))
}

func (h *Handler) UnitHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	if _, err := h.registry.GetUnit(ctx, id); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	entries, err := h.query.HistoryForUnit(ctx, id)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	h.writeEntries(ctx, w, entries)
}

func (h *Handler) RegisterUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	unit := &domain.ResourceUnit{
		ID:         req.ID,
		Kind:       req.Kind,
		Label:      req.Label,
		Attributes: req.Attributes,
	}
	if err := h.registry.RegisterUnit(ctx, actor(r), unit); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	resp := mapUnit(*unit)
	resp.Status = domain.StatusAvailable
	writeJSON(ctx, w, http.StatusCreated, resp)
}

func (h *Handler) DecommissionUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.registry.DecommissionUnit(ctx, actor(r), mux.Vars(r)["id"]); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusNoContent, nil)
}
