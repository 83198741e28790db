package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokend/pkg/authz"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// RequireScopes lets the request through only when the authenticated token
// carries every listed scope. Must run after AuthnMiddleware.
func RequireScopes(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeBearerError(w, "missing bearer token")
				return
			}

			if authz.Authorize(claims, required...) == authz.Deny {
				slogx.FromContext(r.Context()).Info("scope check denied",
					"sub", claims.Subject,
					"required", required,
					"scopes", claims.Scopes(),
				)
				writeBearerScopeError(w, required...)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer insufficient_scope.
func writeBearerScopeError(w http.ResponseWriter, required ...string) {
	scope := strings.Join(required, " ")
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+scope+`"`)
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "insufficient_scope",
		"error_description": "token lacks required scope: " + scope,
	})
}
