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

// AuthorizationCodeGrant exchanges a single-use authorization code for
// tokens. Refresh tokens minted here belong to the family named after the
// code, so a replayed code can take them all down.
type AuthorizationCodeGrant struct {
	Clients   ClientRegistry
	Users     UserStore
	Store     store.Store
	Claims    *ClaimsBuilder
	Issuer    *TokenIssuer
	Telemetry *telemetry.Telemetry
	Now       func() time.Time
}

func (g *AuthorizationCodeGrant) Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	now := nowFrom(g.Now)
	l := slogx.FromContext(ctx)

	client, err := authenticateFor(ctx, g.Clients, req, domain.GrantAuthorizationCode)
	if err != nil {
		return domain.TokenResult{}, err
	}

	code := strings.TrimSpace(req.Code)
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if code == "" || redirectURI == "" {
		return domain.TokenResult{}, fmt.Errorf("%w: code and redirect_uri are required", ErrInvalidRequest)
	}

	hash := cryptox.FingerprintToken(code)
	authCode, err := g.Store.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, fmt.Errorf("%w: unknown authorization code", ErrInvalidGrant)
		}
		return domain.TokenResult{}, fmt.Errorf("lookup authorization code: %w", err)
	}

	if authCode.ClientID != client.ID {
		return domain.TokenResult{}, fmt.Errorf("%w: authorization code was issued to another client", ErrInvalidGrant)
	}
	if authCode.RedeemedAt != nil {
		g.replayed(ctx, authCode)
		return domain.TokenResult{}, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
	}
	if !now.Before(authCode.ExpiresAt) {
		return domain.TokenResult{}, fmt.Errorf("%w: authorization code expired", ErrInvalidGrant)
	}
	if authCode.RedirectURI != redirectURI {
		return domain.TokenResult{}, fmt.Errorf("%w: redirect_uri does not match", ErrInvalidGrant)
	}
	if client.RequiresPKCE && authCode.CodeChallenge == "" {
		return domain.TokenResult{}, fmt.Errorf("%w: client requires PKCE", ErrInvalidGrant)
	}
	if !verifyCodeVerifier(authCode.CodeChallenge, authCode.CodeChallengeMethod, req.CodeVerifier) {
		return domain.TokenResult{}, fmt.Errorf("%w: code_verifier does not match", ErrInvalidGrant)
	}

	user, err := g.Users.FindByID(ctx, authCode.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenResult{}, fmt.Errorf("%w: user no longer exists", ErrInvalidGrant)
		}
		return domain.TokenResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := canSignIn(user, now); err != nil {
		return domain.TokenResult{}, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	scopes := intersectScopes(authCode.Scopes, client.AllowedScopes)
	principal, err := g.Claims.ForUser(ctx, user, client.ID, scopes)
	if err != nil {
		return domain.TokenResult{}, err
	}

	// Sign before the code is consumed so a signing failure leaves it
	// redeemable.
	pending, err := g.Issuer.Prepare(ctx, principal, now, IssueOptions{
		Refresh:  client.AllowsGrant(domain.GrantRefreshToken),
		UserID:   user.ID,
		FamilyID: authCode.ID,
	})
	if err != nil {
		return domain.TokenResult{}, err
	}

	var res domain.TokenResult
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AuthorizationCodes().RedeemAuthorizationCode(ctx, hash, now); err != nil {
			return err
		}
		var err error
		res, err = g.Issuer.Persist(ctx, pending, tx.RefreshTokens())
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyRedeemed):
			l.Info("authorization code redeemed concurrently", "client_id", client.ID, "code_id", authCode.ID)
			return domain.TokenResult{}, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
		case errors.Is(err, store.ErrNotFound):
			return domain.TokenResult{}, fmt.Errorf("%w: unknown authorization code", ErrInvalidGrant)
		default:
			return domain.TokenResult{}, fmt.Errorf("redeem authorization code: %w", err)
		}
	}
	return res, nil
}

// replayed revokes every refresh token issued from a code that is being
// presented a second time.
func (g *AuthorizationCodeGrant) replayed(ctx context.Context, code domain.AuthorizationCode) {
	l := slogx.FromContext(ctx)
	g.Telemetry.RecordReplay(ctx, domain.GrantAuthorizationCode.String())

	n, err := g.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, code.ID)
	if err != nil {
		l.Error("failed to revoke tokens of replayed code", "code_id", code.ID, "error", err)
		return
	}
	l.Warn("authorization code replay detected",
		"client_id", code.ClientID,
		"code_id", code.ID,
		"revoked", n,
	)
}
