package http

import (
	"context"

	"library-ledger-backend/internal/domain"
)

type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity returns a derived context carrying the signed-in member.
func ContextWithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(domain.Identity)
	return id, ok
}
