package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// RevocationService implements refresh token revocation (RFC 7009).
type RevocationService struct {
	Clients ClientRegistry
	Store   store.Store
}

// Revoke revokes the family of a refresh token held by the client. Unknown
// tokens and tokens of other clients are ignored so that the response does
// not reveal which tokens exist.
func (s *RevocationService) Revoke(ctx context.Context, clientID, clientSecret, token string) error {
	client, err := s.Clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt.ClientID != client.ID {
		return nil
	}

	n, err := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID)
	if err != nil {
		return fmt.Errorf("revoke refresh token family: %w", err)
	}
	slogx.FromContext(ctx).Info("refresh token family revoked",
		"client_id", client.ID,
		"family_id", rt.FamilyID,
		"revoked", n,
	)
	return nil
}
