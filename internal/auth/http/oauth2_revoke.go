package http

import (
	"net/http"

	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
)

// RevokeHandler serves POST /connect/revoke following RFC 7009. Only
// refresh tokens can be revoked; access tokens expire naturally. Unknown
// tokens still get 200 so the endpoint cannot be used to probe for them.
type RevokeHandler struct {
	Revocation *service.RevocationService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "" && !httpx.IsFormContentType(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return
	}

	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// An access_token hint is accepted but there is nothing to revoke.
	if r.PostForm.Get("token_type_hint") != "access_token" {
		if err := h.Revocation.Revoke(r.Context(), clientID, clientSecret, r.PostForm.Get("token")); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}
