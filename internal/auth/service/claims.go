package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

// destinationRule routes one claim type. A claim always reaches the access
// token unless it is private, and reaches the identity token only when
// identityScope is granted.
type destinationRule struct {
	private       bool
	identityScope string
}

// destinationTable holds the claims with special routing. Claim types not
// listed go to the access token only.
var destinationTable = map[string]destinationRule{
	domain.ClaimName:          {identityScope: domain.ScopeProfile},
	domain.ClaimEmail:         {identityScope: domain.ScopeEmail},
	domain.ClaimRole:          {identityScope: domain.ScopeRoles},
	domain.ClaimSecurityStamp: {private: true},
}

// BuildDestinations decides which tokens a claim of claimType may appear in
// given the granted scopes.
func BuildDestinations(claimType string, granted []string) domain.Destination {
	rule, ok := destinationTable[claimType]
	if !ok {
		return domain.DestinationAccessToken
	}
	if rule.private {
		return domain.DestinationNone
	}
	dest := domain.DestinationAccessToken
	if rule.identityScope != "" && slices.Contains(granted, rule.identityScope) {
		dest |= domain.DestinationIdentityToken
	}
	return dest
}

// ClaimsBuilder turns a user or client into a ClaimsPrincipal for one token
// request. It holds no per-request state.
type ClaimsBuilder struct {
	Scopes ScopeRegistry
}

// ForUser builds the principal for a user-backed grant. Empty optional
// claims are left out.
func (b *ClaimsBuilder) ForUser(ctx context.Context, u domain.User, clientID string, scopes []string) (domain.ClaimsPrincipal, error) {
	p := domain.ClaimsPrincipal{Subject: u.ID, ClientID: clientID, Scopes: scopes}

	p.Claims = appendClaim(p.Claims, domain.ClaimName, u.Username, scopes)
	p.Claims = appendClaim(p.Claims, domain.ClaimEmail, u.Email, scopes)
	for _, role := range u.Roles {
		p.Claims = appendClaim(p.Claims, domain.ClaimRole, role, scopes)
	}
	p.Claims = appendClaim(p.Claims, domain.ClaimSecurityStamp, u.SecurityStamp, scopes)

	return b.withResources(ctx, p)
}

// ForClient builds the principal for client_credentials: the client is the
// subject and its display name is the name claim.
func (b *ClaimsBuilder) ForClient(ctx context.Context, c domain.Client, scopes []string) (domain.ClaimsPrincipal, error) {
	p := domain.ClaimsPrincipal{Subject: c.ID, ClientID: c.ID, Scopes: scopes}
	p.Claims = appendClaim(p.Claims, domain.ClaimName, c.DisplayName, scopes)
	return b.withResources(ctx, p)
}

func (b *ClaimsBuilder) withResources(ctx context.Context, p domain.ClaimsPrincipal) (domain.ClaimsPrincipal, error) {
	resources, err := b.Scopes.ResolveResources(ctx, p.Scopes)
	if err != nil {
		return domain.ClaimsPrincipal{}, fmt.Errorf("resolve resources: %w", err)
	}
	p.Resources = resources
	return p, nil
}

func appendClaim(claims []domain.Claim, typ, value string, scopes []string) []domain.Claim {
	if value == "" {
		return claims
	}
	return append(claims, domain.Claim{
		Type:         typ,
		Value:        value,
		Destinations: BuildDestinations(typ, scopes),
	})
}
