package httpx

import (
	"context"

	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyClaims ctxKey = "claims"
	ctxKeyToken  ctxKey = "access_token"
)

func contextWithAuth(ctx context.Context, c *jwtx.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClaims, c)
	return context.WithValue(ctx, ctxKeyToken, raw)
}

// ClaimsFromContext returns the verified access-token claims placed by
// AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*jwtx.Claims)
	return c, ok && c != nil
}

// SubjectFromContext is shorthand for the authenticated wallet address.
func SubjectFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Subject
	}
	return ""
}
