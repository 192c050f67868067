package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/idempotency"
	"library-ledger-backend/internal/repository/memory"
	"library-ledger-backend/internal/security"
	"library-ledger-backend/internal/service"
)

var t0 = time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	router *mux.Router
	clock  *clock.Manual
	store  *memory.Store
	tokens security.TokenManager
	auth   service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(t0)
	store := memory.NewStore(clk.Now)
	tokens := security.NewTokenManager("router-test-secret", time.Hour)
	policy := domain.DefaultLendingPolicy()

	registry := service.NewRegistryService(store.ResourceRepository, clk)
	auth := service.NewAuthService(store.MemberRepository, tokens)
	h := NewHandler(
		registry,
		service.NewLendingService(store.ResourceRepository, store.LedgerRepository, store.MemberRepository, clk, policy, nil),
		service.NewQueryService(store.ResourceRepository, store.LedgerRepository, policy),
		auth,
		clk,
	)

	admin := domain.Identity{ID: "A1", Role: domain.RoleAdmin}
	for _, u := range []domain.ResourceUnit{
		{ID: "U1", Kind: domain.UnitKindBookCopy, Label: "Dune (copy 1)", Attributes: map[string]string{domain.AttrBookID: "B1"}},
		{ID: "S1", Kind: domain.UnitKindSeat, Label: "Seat A-1", Attributes: map[string]string{domain.AttrSection: "quiet"}},
	} {
		u := u
		require.NoError(t, registry.RegisterUnit(ctx, admin, &u))
	}
	for _, m := range []domain.Member{
		{ID: "M1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleMember, Status: domain.MemberStatusActive},
		{ID: "M2", Name: "Grace", Email: "grace@example.com", Role: domain.RoleMember, Status: domain.MemberStatusActive},
		{ID: "A1", Name: "Desk", Email: "desk@example.com", Role: domain.RoleAdmin, Status: domain.MemberStatusActive},
	} {
		m := m
		require.NoError(t, store.Create(ctx, &m))
	}

	return &testServer{
		router: NewRouter(h, tokens, idempotency.NewMemoryStore(time.Hour)),
		clock:  clk,
		store:  store,
		tokens: tokens,
		auth:   auth,
	}
}

func (s *testServer) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateAccessToken(domain.Identity{ID: id, Role: role})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_Security(t *testing.T) {
	s := newTestServer(t)
	member := s.token(t, "M1", domain.RoleMember)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK},
		{"units need a token", http.MethodGet, "/api/units", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/units", "not-a-jwt", http.StatusUnauthorized},
		{"member reads units", http.MethodGet, "/api/units", member, http.StatusOK},
		{"overdue list is admin only", http.MethodGet, "/api/checkouts/overdue", member, http.StatusForbidden},
		{"decommission is admin only", http.MethodDelete, "/api/units/U1", member, http.StatusForbidden},
		{"other member's holdings", http.MethodGet, "/api/members/M2/holdings", member, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_CheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	m1 := s.token(t, "M1", domain.RoleMember)
	m2 := s.token(t, "M2", domain.RoleMember)
	admin := s.token(t, "A1", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/checkouts", m1, checkoutRequest{UnitID: "U1", Days: 14})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	co := decode[checkoutResponse](t, rec)
	assert.Equal(t, "M1", co.MemberID)
	assert.Equal(t, "B1", co.BookID)
	assert.Equal(t, domain.StatusBorrowed, co.Status)
	assert.True(t, co.DueDate.Equal(t0.Add(14*24*time.Hour)))

	rec = s.do(t, http.MethodPost, "/api/checkouts", m2, checkoutRequest{UnitID: "U1", Days: 14})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "UNAVAILABLE", decode[errorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/units/U1", m2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusBorrowed, decode[unitResponse](t, rec).Status)

	s.clock.Set(t0.Add(15 * 24 * time.Hour))
	rec = s.do(t, http.MethodPost, "/api/checkouts/"+co.ID+"/renew", m1, renewRequest{Days: 7})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "overdue checkouts do not renew")

	rec = s.do(t, http.MethodGet, "/api/checkouts/overdue", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decode[[]checkoutResponse](t, rec)
	require.Len(t, overdue, 1)
	assert.Equal(t, domain.StatusOverdue, overdue[0].Status)

	rec = s.do(t, http.MethodGet, "/api/members/M1/summary", m1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[summaryResponse](t, rec)
	assert.EqualValues(t, 1, summary.OverdueBooks)
	assert.EqualValues(t, 25, summary.FeesDueCents)

	rec = s.do(t, http.MethodPost, "/api/checkouts/"+co.ID+"/return", m1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decode[checkoutResponse](t, rec)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, domain.StatusReturned, returned.Status)

	rec = s.do(t, http.MethodPost, "/api/checkouts/"+co.ID+"/return", m1, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_CLOSED", decode[errorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/units/U1/history", m2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]checkoutResponse](t, rec), 1)
}

func TestRouter_Reservations(t *testing.T) {
	s := newTestServer(t)
	m1 := s.token(t, "M1", domain.RoleMember)
	m2 := s.token(t, "M2", domain.RoleMember)

	rec := s.do(t, http.MethodPost, "/api/reservations", m1, reservationRequest{
		UnitID: "S1", StartTime: t0.Add(time.Hour), EndTime: t0.Add(3 * time.Hour), Purpose: "thesis",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[reservationResponse](t, rec)
	assert.Equal(t, domain.EntryKindSeatReservation, res.Kind)
	assert.Equal(t, "thesis", res.Purpose)
	assert.Equal(t, domain.StatusReserved, res.Status)

	rec = s.do(t, http.MethodPost, "/api/reservations", m2, reservationRequest{
		UnitID: "S1", StartTime: t0.Add(2 * time.Hour), EndTime: t0.Add(4 * time.Hour),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OVERLAP", decode[errorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/reservations", m2, reservationRequest{
		UnitID: "S1", StartTime: t0.Add(4 * time.Hour), EndTime: t0.Add(2 * time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/cancel", m2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/cancel", m1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[reservationResponse](t, rec).ClosedAt)

	rec = s.do(t, http.MethodGet, "/api/units?kind=seat", m2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[[]unitResponse](t, rec)
	require.Len(t, board, 1)
	assert.Equal(t, domain.StatusAvailable, board[0].Status)
}

func TestRouter_Idempotency(t *testing.T) {
	s := newTestServer(t)
	m1 := s.token(t, "M1", domain.RoleMember)
	body := checkoutRequest{UnitID: "U1", Days: 7}

	first := s.do(t, http.MethodPost, "/api/checkouts", m1, body, idempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(t, http.MethodPost, "/api/checkouts", m1, body, idempotencyHeader, "key-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	hist, err := s.store.HistoryForUnit(context.Background(), "U1")
	require.NoError(t, err)
	assert.Len(t, hist, 1, "the replay did not write again")

	third := s.do(t, http.MethodPost, "/api/checkouts", m1, body, idempotencyHeader, "key-2")
	assert.Equal(t, http.StatusConflict, third.Code, "a new key runs the request")
}

func TestRouter_IdempotencyReleasesKeyOnPanic(t *testing.T) {
	keys := idempotency.NewMemoryStore(time.Hour)
	calls := 0
	handler := Idempotency(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("handler blew up")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/checkouts", nil)
		req.Header.Set(idempotencyHeader, "key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Panics(t, func() { send() })
	rec := send()
	assert.Equal(t, http.StatusCreated, rec.Code, "the key was released, not left in progress")
	assert.Equal(t, 2, calls)
}

func TestRouter_ReturnDateIsStaffOnly(t *testing.T) {
	s := newTestServer(t)
	m1 := s.token(t, "M1", domain.RoleMember)
	admin := s.token(t, "A1", domain.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/checkouts", m1, checkoutRequest{UnitID: "U1", Days: 14})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	co := decode[checkoutResponse](t, rec)

	s.clock.Set(t0.Add(20 * 24 * time.Hour))
	backdated := t0.Add(24 * time.Hour)
	rec = s.do(t, http.MethodPost, "/api/checkouts/"+co.ID+"/return", m1, returnRequest{ReturnDate: &backdated})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	entry, err := s.store.Get(context.Background(), co.ID)
	require.NoError(t, err)
	assert.True(t, entry.IsOpen(), "a refused backdate leaves the checkout open")

	rec = s.do(t, http.MethodPost, "/api/checkouts/"+co.ID+"/return", admin, returnRequest{ReturnDate: &backdated})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decode[checkoutResponse](t, rec)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.Equal(backdated))
}

func TestRouter_WrongCloseRoute(t *testing.T) {
	s := newTestServer(t)
	m1 := s.token(t, "M1", domain.RoleMember)

	rec := s.do(t, http.MethodPost, "/api/reservations", m1, reservationRequest{
		UnitID: "S1", StartTime: t0.Add(time.Hour), EndTime: t0.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[reservationResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/checkouts/"+res.ID+"/return", m1, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouter_AuthCookie(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{Name: "Linus", Email: "linus@example.com", Password: "penguins-rule"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "linus@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "linus@example.com", Password: "penguins-rule"})
	require.Equal(t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	s.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "linus@example.com", decode[memberResponse](t, me).Email)
}

func TestRouter_AdminManagesUnitsAndMembers(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "A1", domain.RoleAdmin)
	m2 := s.token(t, "M2", domain.RoleMember)

	rec := s.do(t, http.MethodPost, "/api/units", admin, registerUnitRequest{
		Kind: domain.UnitKindParkingSpot, Label: "Spot 7", Attributes: map[string]string{domain.AttrSpotType: "handicap"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unit := decode[unitResponse](t, rec)
	assert.NotEmpty(t, unit.ID)

	rec = s.do(t, http.MethodDelete, "/api/units/"+unit.ID, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/units/"+unit.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/members/M2/status", admin, memberStatusRequest{Status: domain.MemberStatusSuspended})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/checkouts", m2, checkoutRequest{UnitID: "U1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrOverlap))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrNotActive))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.ErrNotEligible))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidWindow))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.ErrUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
