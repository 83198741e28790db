package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
)

// UserInfoService answers the OIDC userinfo endpoint with the same claims
// an identity token would carry for the granted scopes.
type UserInfoService struct {
	Users UserStore
}

func (s *UserInfoService) UserInfo(ctx context.Context, subject string, scopes []string) (authsdk.UserInfo, error) {
	u, err := s.Users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authsdk.UserInfo{}, fmt.Errorf("%w: unknown subject", ErrInvalidGrant)
		}
		return authsdk.UserInfo{}, fmt.Errorf("lookup user: %w", err)
	}

	info := authsdk.UserInfo{Subject: u.ID}
	if BuildDestinations(domain.ClaimName, scopes).Has(domain.DestinationIdentityToken) {
		info.Name = u.Username
	}
	if BuildDestinations(domain.ClaimEmail, scopes).Has(domain.DestinationIdentityToken) {
		info.Email = u.Email
	}
	if BuildDestinations(domain.ClaimRole, scopes).Has(domain.DestinationIdentityToken) {
		info.Roles = u.Roles
	}
	return info, nil
}
