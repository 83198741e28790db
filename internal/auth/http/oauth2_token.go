package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
)

// TokenHandler serves POST /connect/token. It only parses the request and
// renders the result; the grant logic lives behind the dispatcher.
type TokenHandler struct {
	Dispatcher *service.GrantDispatcher
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if r.Header.Get("Content-Type") != "" && !httpx.IsFormContentType(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return
	}

	clientID, clientSecret, err := clientCredentials(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	form := r.PostForm
	req := domain.TokenRequest{
		GrantType:    strings.TrimSpace(form.Get("grant_type")),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     strings.TrimSpace(form.Get("username")),
		Password:     form.Get("password"),
		Code:         strings.TrimSpace(form.Get("code")),
		RedirectURI:  strings.TrimSpace(form.Get("redirect_uri")),
		CodeVerifier: strings.TrimSpace(form.Get("code_verifier")),
		RefreshToken: strings.TrimSpace(form.Get("refresh_token")),
		Scopes:       httpx.ParseSpaceDelimitedFields(form.Get("scope")),
	}

	// 3. Hand off to the grant handler
	res, err := h.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(res))
}

func tokenResponse(res domain.TokenResult) authsdk.TokenResponse {
	resp := authsdk.TokenResponse{
		AccessToken: res.AccessToken.Value,
		TokenType:   "Bearer",
		ExpiresIn:   res.AccessToken.ExpiresIn(res.AccessToken.IssuedAt),
		Scope:       strings.Join(res.Scopes, " "),
	}
	if res.IdentityToken != nil {
		resp.IDToken = res.IdentityToken.Value
	}
	if res.RefreshToken != nil {
		resp.RefreshToken = res.RefreshToken.Value
	}
	return resp
}

// clientCredentials reads client authentication from HTTP Basic (RFC 6749
// §2.3.1, form-encoded) or from the body. Using both with different client
// ids is rejected.
func clientCredentials(r *http.Request) (id, secret string, err error) {
	formID := strings.TrimSpace(r.PostForm.Get("client_id"))

	user, pass, ok := r.BasicAuth()
	if !ok {
		return formID, r.PostForm.Get("client_secret"), nil
	}

	id, err = url.QueryUnescape(user)
	if err != nil {
		return "", "", service.ErrInvalidClient
	}
	secret, err = url.QueryUnescape(pass)
	if err != nil {
		return "", "", service.ErrInvalidClient
	}
	if formID != "" && formID != id {
		return "", "", service.ErrInvalidRequest
	}
	if r.PostForm.Get("client_secret") != "" {
		return "", "", service.ErrInvalidRequest
	}
	return id, secret, nil
}
