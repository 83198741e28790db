package domain

import "time"

// TokenKind distinguishes the three tokens a grant can produce.
type TokenKind string

const (
	TokenAccess   TokenKind = "access_token"
	TokenIdentity TokenKind = "id_token"
	TokenRefresh  TokenKind = "refresh_token"
)

// IssuedToken is a token handed to a client. Value is a compact JWS for
// access and identity tokens and an opaque string for refresh tokens.
type IssuedToken struct {
	Kind      TokenKind
	ID        string // jti, or the refresh token record id
	Value     string
	Subject   string
	ClientID  string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	FamilyID  string // refresh only
}

// ExpiresIn is the remaining lifetime in whole seconds, as sent on the wire.
func (t IssuedToken) ExpiresIn(now time.Time) int {
	return max(int(t.ExpiresAt.Sub(now).Seconds()), 0)
}

// RefreshToken is the stored record behind an opaque refresh token. Tokens
// rotated from one another share a FamilyID.
type RefreshToken struct {
	ID         string
	TokenHash  string // base64url SHA-256 of the opaque value
	FamilyID   string
	ClientID   string
	UserID     string
	Scopes     []string
	ExpiresAt  time.Time
	RedeemedAt *time.Time
	Revoked    bool
	CreatedAt  time.Time
}
