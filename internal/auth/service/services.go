package service

import (
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
)

// Config carries the token policy shared by the services.
type Config struct {
	Issuer string

	AccessTokenTTL   time.Duration
	IdentityTokenTTL time.Duration
	RefreshTokenTTL  time.Duration
	CodeTTL          time.Duration

	// MaxFailedAttempts <= 0 disables lockout.
	MaxFailedAttempts int
	LockoutDuration   time.Duration

	// CacheTTL bounds how long client and scope lookups are cached.
	CacheTTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Services is the wired set of services behind the HTTP layer.
type Services struct {
	Clients    *ClientService
	Scopes     *ScopeService
	Users      *UserService
	Claims     *ClaimsBuilder
	Issuer     *TokenIssuer
	Dispatcher *GrantDispatcher
	Authorize  *AuthorizeService
	Revocation *RevocationService
	UserInfo   *UserInfoService
}

func New(st store.Store, keys *jwtx.KeyManager, tel *telemetry.Telemetry, cfg Config) *Services {
	scopes := NewScopeService(st, cfg.CacheTTL)
	clients := NewClientService(st, scopes, cfg.CacheTTL)
	users := &UserService{
		Store:             st,
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockoutDuration:   cfg.LockoutDuration,
	}
	claims := &ClaimsBuilder{Scopes: scopes}
	issuer := &TokenIssuer{
		Keys:        keys,
		Store:       st,
		Telemetry:   tel,
		Issuer:      cfg.Issuer,
		AccessTTL:   cfg.AccessTokenTTL,
		IdentityTTL: cfg.IdentityTokenTTL,
		RefreshTTL:  cfg.RefreshTokenTTL,
	}

	dispatcher := NewGrantDispatcher(tel, map[domain.GrantType]GrantHandler{
		domain.GrantPassword: &PasswordGrant{
			Clients: clients, Scopes: scopes, Users: users,
			Claims: claims, Issuer: issuer, Now: cfg.Now,
		},
		domain.GrantAuthorizationCode: &AuthorizationCodeGrant{
			Clients: clients, Users: users, Store: st,
			Claims: claims, Issuer: issuer, Telemetry: tel, Now: cfg.Now,
		},
		domain.GrantRefreshToken: &RefreshTokenGrant{
			Clients: clients, Users: users, Store: st,
			Claims: claims, Issuer: issuer, Telemetry: tel, Now: cfg.Now,
		},
		domain.GrantClientCredentials: &ClientCredentialsGrant{
			Clients: clients, Scopes: scopes,
			Claims: claims, Issuer: issuer, Now: cfg.Now,
		},
	})

	return &Services{
		Clients:    clients,
		Scopes:     scopes,
		Users:      users,
		Claims:     claims,
		Issuer:     issuer,
		Dispatcher: dispatcher,
		Authorize: &AuthorizeService{
			Clients: clients, Scopes: scopes, Users: users, Store: st,
			CodeTTL: cfg.CodeTTL, Now: cfg.Now,
		},
		Revocation: &RevocationService{Clients: clients, Store: st},
		UserInfo:   &UserInfoService{Users: users},
	}
}
