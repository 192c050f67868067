package http

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/idempotency"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/security"
)

const (
	tokenCookieName   = "token"
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
)

type AuthMiddleware struct {
	tokens security.TokenManager
}

func NewAuthMiddleware(tokens security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler authenticates and authorizes requests by the security level of
// the matched route name.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		level := config.GetSecurityLevel(routeName(r))
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(ctx, w, http.StatusUnauthorized, errMissingToken)
			return
		}
		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			logger.DebugContext(ctx, "Token rejected", "error", err)
			writeError(ctx, w, http.StatusUnauthorized, errInvalidToken)
			return
		}

		id := claims.Identity()
		if level == config.SecurityAdmin && !id.IsAdmin() {
			writeError(ctx, w, http.StatusForbidden, errAdminOnly)
			return
		}

		ctx = ContextWithIdentity(ctx, id)
		ctx = logger.With(ctx, "member_id", id.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the session cookie first, then a bearer header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(tokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

// responseCapture buffers a response so it can be stored for replay.
type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated POST carrying an
// Idempotency-Key header. Keys are scoped to the caller and the path.
func Idempotency(store idempotency.Store) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if store == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			caller := "anonymous"
			if id, ok := IdentityFromContext(ctx); ok {
				caller = id.ID
			}
			scoped := caller + ":" + r.URL.Path + ":" + key

			cached, err := store.Reserve(ctx, scoped)
			switch {
			case errors.Is(err, idempotency.ErrInProgress):
				writeError(ctx, w, http.StatusConflict, err)
				return
			case err != nil:
				logger.WarnContext(ctx, "Idempotency store unavailable, processing without it", "error", err)
				next.ServeHTTP(w, r)
				return
			case cached != nil:
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set(replayHeader, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					if err := store.Release(ctx, scoped); err != nil {
						logger.WarnContext(ctx, "Failed to release idempotency key", "error", err)
					}
					panic(p)
				}
			}()
			next.ServeHTTP(capture, r)

			if capture.status == 0 || !idempotency.Cacheable(capture.status) {
				if err := store.Release(ctx, scoped); err != nil {
					logger.WarnContext(ctx, "Failed to release idempotency key", "error", err)
				}
				return
			}
			resp := idempotency.Response{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := store.Complete(ctx, scoped, resp); err != nil {
				logger.WarnContext(ctx, "Failed to store idempotent response", "error", err)
			}
		})
	}
}
