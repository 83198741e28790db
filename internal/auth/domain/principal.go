package domain

import "slices"

// Well-known claim types routed by the destination table.
const (
	ClaimName          = "name"
	ClaimEmail         = "email"
	ClaimRole          = "role"
	ClaimSecurityStamp = "AspNet.Identity.SecurityStamp"
)

// Destination is the set of tokens a claim may be written to.
type Destination uint8

const (
	DestinationAccessToken Destination = 1 << iota
	DestinationIdentityToken

	DestinationNone Destination = 0
	DestinationBoth             = DestinationAccessToken | DestinationIdentityToken
)

func (d Destination) Has(x Destination) bool { return d&x == x && x != 0 }

func (d Destination) String() string {
	switch d {
	case DestinationNone:
		return "none"
	case DestinationAccessToken:
		return "access_token"
	case DestinationIdentityToken:
		return "id_token"
	case DestinationBoth:
		return "access_token+id_token"
	}
	return "unknown"
}

// Claim is one asserted fact about the subject and where it may go.
type Claim struct {
	Type         string
	Value        string
	Destinations Destination
}

// ClaimsPrincipal is built fresh for one token request and never shared.
type ClaimsPrincipal struct {
	Subject  string
	ClientID string
	Claims   []Claim

	// Granted scopes and the resources (audiences) they resolve to.
	Scopes    []string
	Resources []string
}

// HasScope reports whether scope was granted.
func (p *ClaimsPrincipal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// ClaimsFor returns the claims routed to dest, in insertion order.
func (p *ClaimsPrincipal) ClaimsFor(dest Destination) []Claim {
	var out []Claim
	for _, c := range p.Claims {
		if c.Destinations.Has(dest) {
			out = append(out, c)
		}
	}
	return out
}
