package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known claim names carried in tokens issued by the server.
const (
	ClaimSubject  = "sub"
	ClaimName     = "name"
	ClaimEmail    = "email"
	ClaimRole     = "role"
	ClaimScope    = "scope"
	ClaimClientID = "client_id"
)

// Claims is the verified view of an access or identity token. Tokens may
// carry extra claims; those are ignored here.
type Claims struct {
	jwt.RegisteredClaims

	// Space-delimited granted scopes. Nil when the token has no scope claim
	// at all, which is different from an empty grant.
	Scope *string `json:"scope,omitempty"`

	// Client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	// Roles accepts both a single string and an array on the wire.
	Roles jwt.ClaimStrings `json:"role,omitempty"`
}

// ScopeClaim returns the raw scope claim and whether it was present.
func (c *Claims) ScopeClaim() (string, bool) {
	if c.Scope == nil {
		return "", false
	}
	return *c.Scope, true
}

// Scopes splits the scope claim into its values.
func (c *Claims) Scopes() []string {
	if c.Scope == nil {
		return nil
	}
	return strings.Fields(*c.Scope)
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
