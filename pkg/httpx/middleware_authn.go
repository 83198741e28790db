package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// AuthnMiddleware requires a valid bearer access token. Missing, malformed,
// badly signed and expired tokens all get a 401.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("jwt verify failed", "error", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively per RFC 6750.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
