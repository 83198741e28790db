package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// writeServiceError maps a service error onto the OAuth2 wire error.
// Malformed requests get the detail back; credential failures never say
// which check failed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidGrant):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrAccountLocked):
		authsdk.ErrAccountLocked.WriteError(w)
	case errors.Is(err, service.ErrUnauthorizedClient):
		authsdk.ErrUnauthorizedClient.WriteError(w)
	case errors.Is(err, service.ErrUnsupportedGrantType):
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	case errors.Is(err, service.ErrUnsupportedResponseType):
		authsdk.ErrUnsupportedResponseType.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		authsdk.ErrInvalidScope.WithDescription(detail(err)).WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WithDescription(detail(err)).WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// detail strips the leading error code from a wrapped sentinel message.
func detail(err error) string {
	_, desc, found := strings.Cut(err.Error(), ": ")
	if !found {
		return err.Error()
	}
	return desc
}
