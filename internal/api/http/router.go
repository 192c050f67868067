package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"library-ledger-backend/internal/idempotency"
	"library-ledger-backend/internal/metrics"
	"library-ledger-backend/internal/security"
)

// NewRouter wires the API routes. Route names key the security levels in
// config.EndpointSecurityConfig.
func NewRouter(h *Handler, tokens security.TokenManager, keys idempotency.Store) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet).Name("healthz")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(NewAuthMiddleware(tokens).Handler, Idempotency(keys))

	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost).Name("auth.login")
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost).Name("auth.register")
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost).Name("auth.logout")
	api.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet).Name("auth.me")

	api.HandleFunc("/units", h.ListUnits).Methods(http.MethodGet).Name("units.list")
	api.HandleFunc("/units", h.RegisterUnit).Methods(http.MethodPost).Name("units.register")
	api.HandleFunc("/units/{id}", h.GetUnit).Methods(http.MethodGet).Name("units.get")
	api.HandleFunc("/units/{id}", h.DecommissionUnit).Methods(http.MethodDelete).Name("units.decommission")
	api.HandleFunc("/units/{id}/history", h.UnitHistory).Methods(http.MethodGet).Name("units.history")

	// Static paths before {id} so "overdue" is never taken for an entry ID.
	api.HandleFunc("/checkouts/overdue", h.OverdueCheckouts).Methods(http.MethodGet).Name("checkouts.overdue")
	api.HandleFunc("/checkouts/due-soon", h.DueSoonCheckouts).Methods(http.MethodGet).Name("checkouts.dueSoon")
	api.HandleFunc("/checkouts", h.CreateCheckout).Methods(http.MethodPost).Name("checkouts.create")
	api.HandleFunc("/checkouts/{id}/renew", h.RenewCheckout).Methods(http.MethodPost).Name("checkouts.renew")
	api.HandleFunc("/checkouts/{id}/return", h.ReturnCheckout).Methods(http.MethodPost).Name("checkouts.return")

	api.HandleFunc("/reservations", h.CreateReservation).Methods(http.MethodPost).Name("reservations.create")
	api.HandleFunc("/reservations/{id}/cancel", h.CancelReservation).Methods(http.MethodPost).Name("reservations.cancel")

	api.HandleFunc("/members/{id}/holdings", h.MemberHoldings).Methods(http.MethodGet).Name("members.holdings")
	api.HandleFunc("/members/{id}/history", h.MemberHistory).Methods(http.MethodGet).Name("members.history")
	api.HandleFunc("/members/{id}/summary", h.MemberSummary).Methods(http.MethodGet).Name("members.summary")
	api.HandleFunc("/members/{id}/status", h.SetMemberStatus).Methods(http.MethodPut).Name("members.status")

	return r
}
