package domain

import "time"

// PKCE code challenge methods (RFC 7636).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// AuthorizationCode represents an OAuth 2.0 authorization code issuance.
// Only the hash of the code is stored.
type AuthorizationCode struct {
	ID                  string
	CodeHash            string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	RedeemedAt          *time.Time
	CreatedAt           time.Time
}
