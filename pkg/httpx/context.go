package httpx

import (
	"context"

	"github.com/aussiebroadwan/tokend/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeySubject ctxKey = "subject"
	CtxKeyClaims  ctxKey = "claims"
)

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubject, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, &c)
	return ctx
}

// ClaimsFromContext returns the verified token claims placed by
// AuthnMiddleware, or nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *jwtx.Claims {
	c, _ := ctx.Value(CtxKeyClaims).(*jwtx.Claims)
	return c
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(CtxKeySubject).(string)
	return s
}
