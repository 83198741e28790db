package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// AuthorizeHandler processes OAuth2 authorization requests (authorization
// code flow). There are no browser sessions: the user's credentials come
// with the POST.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

// HandleGet answers a browser redirect. Without a session there is nothing
// to authorize yet, so it echoes the request back with login_required.
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	authReq := buildAuthorizeRequest(nil, r.URL.Query())

	payload := map[string]any{
		"error":             "login_required",
		"error_description": "user authentication required",
		"response_type":     authReq.ResponseType,
		"client_id":         authReq.ClientID,
		"redirect_uri":      authReq.RedirectURI, // not validated yet
	}
	if len(authReq.Scopes) > 0 {
		payload["scope"] = strings.Join(authReq.Scopes, " ")
	}
	if authReq.State != "" {
		payload["state"] = authReq.State
	}
	httpx.WriteJSON(w, http.StatusUnauthorized, payload)
}

// HandlePost signs the user in with username and password and redirects to
// the client with a code. Errors are JSON, never redirected, since the
// redirect URI may be the thing that is wrong.
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "" && !httpx.IsFormContentType(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return
	}

	authReq := buildAuthorizeRequest(r.PostForm, r.URL.Query())
	authReq.Username = strings.TrimSpace(r.PostForm.Get("username"))
	authReq.Password = r.PostForm.Get("password")

	resp, err := h.AuthorizeService.IssueAuthorizationCode(r.Context(), authReq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	redirectURL, err := buildAuthorizeRedirect(resp.RedirectURI, resp.Code, resp.State)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to build redirect URL", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// buildAuthorizeRequest prefers the form body and falls back to the query.
func buildAuthorizeRequest(primary, secondary url.Values) service.AuthorizeRequest {
	pick := func(key string) string {
		if primary != nil {
			if v := strings.TrimSpace(primary.Get(key)); v != "" {
				return v
			}
		}
		if secondary != nil {
			return strings.TrimSpace(secondary.Get(key))
		}
		return ""
	}

	return service.AuthorizeRequest{
		ResponseType:        pick("response_type"),
		ClientID:            pick("client_id"),
		RedirectURI:         pick("redirect_uri"),
		Scopes:              httpx.ParseSpaceDelimitedFields(pick("scope")),
		State:               pick("state"),
		CodeChallenge:       pick("code_challenge"),
		CodeChallengeMethod: pick("code_challenge_method"),
	}
}

// buildAuthorizeRedirect adds code and state to the registered redirect
// URI, keeping any query it already has.
func buildAuthorizeRedirect(baseURI, code, state string) (string, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
