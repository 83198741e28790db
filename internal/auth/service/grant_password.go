package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// PasswordGrant implements the resource owner password credentials grant.
type PasswordGrant struct {
	Clients ClientRegistry
	Scopes  ScopeRegistry
	Users   UserStore
	Claims  *ClaimsBuilder
	Issuer  *TokenIssuer
	Now     func() time.Time
}

func (g *PasswordGrant) Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	now := nowFrom(g.Now)

	client, err := authenticateFor(ctx, g.Clients, req, domain.GrantPassword)
	if err != nil {
		return domain.TokenResult{}, err
	}
	if err := g.Scopes.Validate(ctx, req.Scopes); err != nil {
		return domain.TokenResult{}, err
	}

	user, err := signIn(ctx, g.Users, req.Username, req.Password, now)
	if err != nil {
		return domain.TokenResult{}, err
	}

	scopes, err := grantScopes(req.Scopes, client.AllowedScopes)
	if err != nil {
		return domain.TokenResult{}, err
	}

	principal, err := g.Claims.ForUser(ctx, user, client.ID, scopes)
	if err != nil {
		return domain.TokenResult{}, err
	}

	res, err := g.Issuer.Issue(ctx, principal, now, IssueOptions{
		Refresh: client.AllowsGrant(domain.GrantRefreshToken),
		UserID:  user.ID,
	})
	if err != nil {
		return domain.TokenResult{}, err
	}

	slogx.FromContext(ctx).Info("password grant issued tokens",
		"client_id", client.ID,
		"user_id", user.ID,
		"scopes", scopes,
	)
	return res, nil
}
