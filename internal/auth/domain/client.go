package domain

import (
	"errors"
	"slices"
	"time"
)

// ConsentType controls whether the authorize endpoint asks the user before
// issuing a code. Only implicit consent is rendered by this server.
type ConsentType string

const (
	ConsentImplicit ConsentType = "implicit"
	ConsentExplicit ConsentType = "explicit"
)

var ErrInvalidClientRecord = errors.New("invalid client record")

// Client is a registered OAuth2 client application. ID is immutable.
type Client struct {
	ID                string
	SecretHash        string // argon2id PHC; empty for public clients
	DisplayName       string
	AllowedGrantTypes []GrantType
	AllowedScopes     []string
	RedirectURIs      []string // ordered; exact match only
	RequiresPKCE      bool
	ConsentType       ConsentType
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsPublic reports whether the client has no secret (SPAs, native apps).
func (c *Client) IsPublic() bool { return c.SecretHash == "" }

func (c *Client) AllowsGrant(g GrantType) bool {
	return slices.Contains(c.AllowedGrantTypes, g)
}

func (c *Client) AllowsScope(scope string) bool {
	return slices.Contains(c.AllowedScopes, scope)
}

// AllowsRedirectURI compares byte-for-byte; no prefix or wildcard matching.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// Validate checks the record invariants before it is stored.
func (c *Client) Validate() error {
	if c.ID == "" {
		return errors.Join(ErrInvalidClientRecord, errors.New("client id is required"))
	}
	for _, g := range c.AllowedGrantTypes {
		if _, ok := ParseGrantType(string(g)); !ok {
			return errors.Join(ErrInvalidClientRecord, errors.New("unknown grant type "+string(g)))
		}
	}
	if c.AllowsGrant(GrantAuthorizationCode) && len(c.RedirectURIs) == 0 {
		return errors.Join(ErrInvalidClientRecord, errors.New("authorization_code clients need a redirect uri"))
	}
	if c.IsPublic() && c.AllowsGrant(GrantClientCredentials) {
		return errors.Join(ErrInvalidClientRecord, errors.New("public clients cannot use client_credentials"))
	}
	switch c.ConsentType {
	case "", ConsentImplicit, ConsentExplicit:
	default:
		return errors.Join(ErrInvalidClientRecord, errors.New("unknown consent type "+string(c.ConsentType)))
	}
	return nil
}
