package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

// ClientCredentialsGrant issues tokens to a confidential client acting on
// its own behalf. The client is the subject and no refresh token is issued.
type ClientCredentialsGrant struct {
	Clients ClientRegistry
	Scopes  ScopeRegistry
	Claims  *ClaimsBuilder
	Issuer  *TokenIssuer
	Now     func() time.Time
}

func (g *ClientCredentialsGrant) Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	now := nowFrom(g.Now)

	if req.ClientSecret == "" {
		return domain.TokenResult{}, fmt.Errorf("%w: client_credentials requires a confidential client", ErrInvalidClient)
	}
	client, err := authenticateFor(ctx, g.Clients, req, domain.GrantClientCredentials)
	if err != nil {
		return domain.TokenResult{}, err
	}

	if err := g.Scopes.Validate(ctx, req.Scopes); err != nil {
		return domain.TokenResult{}, err
	}
	scopes, err := grantScopes(req.Scopes, client.AllowedScopes)
	if err != nil {
		return domain.TokenResult{}, err
	}

	principal, err := g.Claims.ForClient(ctx, client, scopes)
	if err != nil {
		return domain.TokenResult{}, err
	}
	return g.Issuer.Issue(ctx, principal, now, IssueOptions{})
}
