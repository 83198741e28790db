package service

import "errors"

// Sentinel errors returned by the grant handlers. Handlers wrap them with
// detail via fmt.Errorf("%w: ...") and the HTTP layer matches with errors.Is.
// Anything that does not match one of these is a server error.
var (
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrAccountLocked           = errors.New("account_locked")
)

var sentinels = []error{
	ErrUnsupportedGrantType,
	ErrUnsupportedResponseType,
	ErrInvalidRequest,
	ErrInvalidScope,
	ErrUnauthorizedClient,
	ErrInvalidGrant,
	ErrInvalidClient,
	ErrAccountLocked,
}

// ErrorCode returns the OAuth2 error code for err, or "server_error" when
// err is not a protocol error.
func ErrorCode(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "server_error"
}
