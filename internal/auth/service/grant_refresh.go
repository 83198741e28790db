package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// RefreshTokenGrant rotates single-use refresh tokens. Presenting a token
// that was already rotated revokes its whole family.
type RefreshTokenGrant struct {
	Clients   ClientRegistry
	Users     UserStore
	Store     store.Store
	Claims    *ClaimsBuilder
	Issuer    *TokenIssuer
	Telemetry *telemetry.Telemetry
	Now       func() time.Time
}

func (g *RefreshTokenGrant) Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	now := nowFrom(g.Now)
	l := slogx.FromContext(ctx)

	client, err := authenticateFor(ctx, g.Clients, req, domain.GrantRefreshToken)
	if err != nil {
		return domain.TokenResult{}, err
	}

	value := strings.TrimSpace(req.RefreshToken)
	if value == "" {
		return domain.TokenResult{}, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	rt, err := g.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(value))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
		}
		return domain.TokenResult{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rt.ClientID != client.ID {
		return domain.TokenResult{}, fmt.Errorf("%w: refresh token was issued to another client", ErrInvalidGrant)
	}
	if rt.Revoked {
		return domain.TokenResult{}, fmt.Errorf("%w: refresh token revoked", ErrInvalidGrant)
	}
	if rt.RedeemedAt != nil {
		g.reused(ctx, rt)
		return domain.TokenResult{}, fmt.Errorf("%w: refresh token already used", ErrInvalidGrant)
	}
	if !now.Before(rt.ExpiresAt) {
		return domain.TokenResult{}, fmt.Errorf("%w: refresh token expired", ErrInvalidGrant)
	}

	user, err := g.Users.FindByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, fmt.Errorf("%w: user no longer exists", ErrInvalidGrant)
		}
		return domain.TokenResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := canSignIn(user, now); err != nil {
		return domain.TokenResult{}, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	// Scopes since removed from the client drop out of the family.
	scopes := intersectScopes(rt.Scopes, client.AllowedScopes)
	if len(req.Scopes) > 0 {
		if !isSubset(req.Scopes, scopes) {
			return domain.TokenResult{}, fmt.Errorf("%w: refresh may only narrow the original scopes", ErrInvalidScope)
		}
		scopes = dedupe(req.Scopes)
	}

	principal, err := g.Claims.ForUser(ctx, user, client.ID, scopes)
	if err != nil {
		return domain.TokenResult{}, err
	}

	var res domain.TokenResult
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().RedeemRefreshToken(ctx, rt.ID, now); err != nil {
			return err
		}
		var err error
		res, err = g.Issuer.Issue(ctx, principal, now, IssueOptions{
			Refresh:       true,
			UserID:        user.ID,
			FamilyID:      rt.FamilyID,
			RefreshTokens: tx.RefreshTokens(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyRedeemed) || errors.Is(err, store.ErrNotFound) {
			l.Info("refresh token redeemed concurrently", "client_id", client.ID, "family_id", rt.FamilyID)
			return domain.TokenResult{}, fmt.Errorf("%w: refresh token already used", ErrInvalidGrant)
		}
		return domain.TokenResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return res, nil
}

func (g *RefreshTokenGrant) reused(ctx context.Context, rt domain.RefreshToken) {
	l := slogx.FromContext(ctx)
	g.Telemetry.RecordReplay(ctx, domain.GrantRefreshToken.String())

	n, err := g.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID)
	if err != nil {
		l.Error("failed to revoke reused refresh token family", "family_id", rt.FamilyID, "error", err)
		return
	}
	l.Warn("refresh token reuse detected",
		"client_id", rt.ClientID,
		"family_id", rt.FamilyID,
		"revoked", n,
	)
}
