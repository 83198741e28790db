package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// Seed is the initial data loaded into an empty or partially populated
// database. Records that already exist are left alone.
type Seed struct {
	Scopes  []SeedScope  `yaml:"scopes"`
	Clients []SeedClient `yaml:"clients"`
	Users   []SeedUser   `yaml:"users"`
}

type SeedScope struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Resources   []string `yaml:"resources"`
}

type SeedClient struct {
	ID           string   `yaml:"id"`
	Secret       string   `yaml:"secret"` // empty for public clients
	DisplayName  string   `yaml:"display_name"`
	GrantTypes   []string `yaml:"grant_types"`
	Scopes       []string `yaml:"scopes"`
	RedirectURIs []string `yaml:"redirect_uris"`
	RequirePKCE  bool     `yaml:"require_pkce"`
	ConsentType  string   `yaml:"consent_type"`
}

type SeedUser struct {
	Username string   `yaml:"username"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

// DefaultSeed is the demo setup: a weather API behind the "API" scope, a
// confidential first-party client, a machine client and a public Swagger UI.
func DefaultSeed() Seed {
	return Seed{
		Scopes: []SeedScope{
			{Name: domain.ScopeProfile, DisplayName: "Profile"},
			{Name: domain.ScopeEmail, DisplayName: "Email address"},
			{Name: domain.ScopeRoles, DisplayName: "Roles"},
			{Name: "API", DisplayName: "Weather API", Resources: []string{"weather-api"}},
		},
		Clients: []SeedClient{
			{
				ID:          "default-client",
				Secret:      "DB95C15D-54AE-4044-8E05-07044FD96943",
				DisplayName: "Auth Server Default Client",
				GrantTypes:  []string{"password", "refresh_token", "client_credentials"},
				Scopes:      []string{"openid", "offline_access", "profile", "email", "roles", "API"},
			},
			{
				ID:          "default-api-client",
				Secret:      "11111111-54AE-4044-8E05-07044FD96943",
				DisplayName: "Default API Client",
				GrantTypes:  []string{"client_credentials"},
				Scopes:      []string{"API"},
			},
			{
				ID:           "swagger-client",
				DisplayName:  "Swagger UI",
				GrantTypes:   []string{"authorization_code", "refresh_token"},
				Scopes:       []string{"openid", "offline_access", "profile", "email", "roles", "API"},
				RedirectURIs: []string{"http://localhost:8080/swagger/oauth2-redirect.html"},
				RequirePKCE:  true,
			},
		},
		Users: []SeedUser{
			{Username: "administrator", Email: "administrator@localhost", Password: "demo", Roles: []string{"admin"}},
		},
	}
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return s, nil
}

// ApplySeed registers the seed through the services, so secrets and
// passwords are hashed the same way as at runtime. Scopes go first since
// clients are validated against them. Safe to run repeatedly.
func ApplySeed(ctx context.Context, svc *service.Services, seed Seed) error {
	logger := slogx.FromContext(ctx)

	for _, sc := range seed.Scopes {
		err := svc.Scopes.Register(ctx, domain.Scope{
			Name:        sc.Name,
			DisplayName: sc.DisplayName,
			Resources:   sc.Resources,
		})
		if skipExisting(err) != nil {
			return fmt.Errorf("seed scope %q: %w", sc.Name, err)
		}
	}

	for _, c := range seed.Clients {
		grants := make([]domain.GrantType, 0, len(c.GrantTypes))
		for _, g := range c.GrantTypes {
			grants = append(grants, domain.GrantType(g))
		}
		err := svc.Clients.Register(ctx, domain.Client{
			ID:                c.ID,
			DisplayName:       c.DisplayName,
			AllowedGrantTypes: grants,
			AllowedScopes:     c.Scopes,
			RedirectURIs:      c.RedirectURIs,
			RequiresPKCE:      c.RequirePKCE,
			ConsentType:       domain.ConsentType(c.ConsentType),
		}, c.Secret)
		if skipExisting(err) != nil {
			return fmt.Errorf("seed client %q: %w", c.ID, err)
		}
	}

	for _, u := range seed.Users {
		_, err := svc.Users.Create(ctx, u.Username, u.Email, u.Password, u.Roles)
		if skipExisting(err) != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}

	logger.Info("seed applied",
		"scopes", len(seed.Scopes),
		"clients", len(seed.Clients),
		"users", len(seed.Users),
	)
	return nil
}

func skipExisting(err error) error {
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}
