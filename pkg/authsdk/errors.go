package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tokend/pkg/httpx"
)

// OAuth2 error codes (RFC 6749 §5.2, RFC 6750 §3.1) plus account_locked.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeAccountLocked           = "account_locked"
	ErrorCodeServerError             = "server_error"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
)

// OAuth2Error is the wire error of the token server. The server writes it
// and the SDK client decodes it back, so errors.Is works on both sides.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on the error code alone, so a decoded response with a custom
// description still satisfies errors.Is(err, ErrInvalidGrant).
func (e *OAuth2Error) Is(target error) bool {
	var t *OAuth2Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDescription returns a copy with a different description.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	c := *e
	c.Description = desc
	return &c
}

// WriteError writes this OAuth2Error to an HTTP response writer.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	if e.StatusCode == http.StatusUnauthorized && e.Code == ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="tokend"`)
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

var (
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidClient = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "client authentication failed",
	}

	// ErrInvalidGrant covers bad credentials as well as expired, redeemed or
	// foreign codes and refresh tokens. The description never says which.
	ErrInvalidGrant = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	ErrUnauthorizedClient = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnauthorizedClient,
		Description: "the client is not authorized to use this grant type",
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	ErrInvalidScope = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidScope,
		Description: "requested scope is invalid",
	}

	ErrAccountLocked = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeAccountLocked,
		Description: "the account is temporarily locked",
	}

	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrInvalidContentType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}

	ErrInvalidToken = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	ErrAccessDenied = &OAuth2Error{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccessDenied,
		Description: "access denied",
	}

	ErrUnsupportedResponseType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedResponseType,
		Description: "response type not supported",
	}
)

// parseErrorResponse turns a non-2xx response body into an *OAuth2Error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var e OAuth2Error
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = resp.StatusCode
		return &e
	}
	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
