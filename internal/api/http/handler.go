package http

import (
	"context"
	"net/http"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/service"
)

// Handler serves the JSON API over the ledger services.
type Handler struct {
	registry      service.RegistryService
	lending       service.LendingService
	query         service.QueryService
	auth          service.AuthService
	clock         clock.Clock
	secureCookies bool
	ping          func(context.Context) error
}

func NewHandler(
	registry service.RegistryService,
	lending service.LendingService,
	query service.QueryService,
	auth service.AuthService,
	clk clock.Clock,
) *Handler {
	return &Handler{
		registry: registry,
		lending:  lending,
		query:    query,
		auth:     auth,
		clock:    clk,
	}
}

// WithSecureCookies marks the session cookie Secure.
func (h *Handler) WithSecureCookies(secure bool) *Handler {
	h.secureCookies = secure
	return h
}

// WithHealthCheck sets the dependency check behind /healthz.
func (h *Handler) WithHealthCheck(ping func(context.Context) error) *Handler {
	h.ping = ping
	return h
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor returns the identity the auth middleware attached. Routes behind the
// middleware always have one; the zero identity can act for nobody.
func actor(r *http.Request) domain.Identity {
	id, _ := IdentityFromContext(r.Context())
	return id
}

// bookIDs resolves the bookId attribute for the units behind checkouts.
func (h *Handler) bookIDs(ctx context.Context, entries []domain.LedgerEntry) map[string]string {
	ids := make(map[string]string)
	for _, e := range entries {
		if e.Kind != domain.EntryKindCheckout {
			continue
		}
		if _, seen := ids[e.UnitID]; seen {
			continue
		}
		ids[e.UnitID] = ""
		if u, err := h.registry.GetUnit(ctx, e.UnitID); err == nil {
			ids[e.UnitID] = u.Attr(domain.AttrBookID)
		}
	}
	return ids
}

func (h *Handler) writeEntries(ctx context.Context, w http.ResponseWriter, entries []domain.LedgerEntry) {
	now := h.clock.Now()
	books := h.bookIDs(ctx, entries)
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, mapEntry(e, now, books[e.UnitID]))
	}
	writeJSON(ctx, w, http.StatusOK, out)
}

func (h *Handler) writeEntry(ctx context.Context, w http.ResponseWriter, status int, e *domain.LedgerEntry) {
	books := h.bookIDs(ctx, []domain.LedgerEntry{*e})
	writeJSON(ctx, w, status, mapEntry(*e, h.clock.Now(), books[e.UnitID]))
}
