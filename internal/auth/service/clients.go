package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
	gocache "github.com/patrickmn/go-cache"
)

// ClientRegistry is what the grant handlers need from the client catalogue.
type ClientRegistry interface {
	FindByID(ctx context.Context, id string) (domain.Client, error)

	// Authenticate resolves the client and checks its secret. Public
	// clients must not send one; confidential clients must send the right
	// one. Every failure is ErrInvalidClient.
	Authenticate(ctx context.Context, id, secret string) (domain.Client, error)
}

type ClientService struct {
	Store  store.Store
	Scopes ScopeRegistry
	cache  *gocache.Cache
}

var _ ClientRegistry = (*ClientService)(nil)

// NewClientService caches lookups for ttl. A ttl <= 0 disables caching.
func NewClientService(st store.Store, scopes ScopeRegistry, ttl time.Duration) *ClientService {
	s := &ClientService{Store: st, Scopes: scopes}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

func (s *ClientService) FindByID(ctx context.Context, id string) (domain.Client, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(id); ok {
			return v.(domain.Client), nil
		}
	}
	c, err := s.Store.Clients().GetClientByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	if s.cache != nil {
		s.cache.SetDefault(id, c)
	}
	return c, nil
}

func (s *ClientService) Authenticate(ctx context.Context, id, secret string) (domain.Client, error) {
	l := slogx.FromContext(ctx)

	if id == "" {
		return domain.Client{}, fmt.Errorf("%w: client_id is required", ErrInvalidClient)
	}
	c, err := s.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, fmt.Errorf("%w: unknown client", ErrInvalidClient)
		}
		return domain.Client{}, fmt.Errorf("lookup client: %w", err)
	}

	if c.IsPublic() {
		if secret != "" {
			l.Info("public client presented a secret", "client_id", id)
			return domain.Client{}, fmt.Errorf("%w: public clients must not send a secret", ErrInvalidClient)
		}
		return c, nil
	}

	if secret == "" || cryptox.VerifyPassword(secret, c.SecretHash) != nil {
		l.Info("client authentication failed", "client_id", id)
		return domain.Client{}, fmt.Errorf("%w: client authentication failed", ErrInvalidClient)
	}
	return c, nil
}

// Register validates and stores a client. A non-empty secret makes the
// client confidential; it is stored as an argon2id hash.
func (s *ClientService) Register(ctx context.Context, c domain.Client, secret string) error {
	if secret != "" {
		hash, err := cryptox.HashPassword(secret)
		if err != nil {
			return fmt.Errorf("hash client secret: %w", err)
		}
		c.SecretHash = hash
	}
	if c.ConsentType == "" {
		c.ConsentType = domain.ConsentImplicit
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if s.Scopes != nil {
		if err := s.Scopes.Validate(ctx, c.AllowedScopes); err != nil {
			return err
		}
	}

	if err := s.Store.Clients().CreateClient(ctx, c); err != nil {
		return err
	}
	s.invalidate(c.ID)

	slogx.FromContext(ctx).Info("client registered",
		"client_id", c.ID,
		"confidential", !c.IsPublic(),
		"grant_types", c.AllowedGrantTypes,
	)
	return nil
}

func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

func (s *ClientService) Delete(ctx context.Context, id string) error {
	if err := s.Store.Clients().DeleteClient(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	slogx.FromContext(ctx).Info("client deleted", "client_id", id)
	return nil
}

func (s *ClientService) invalidate(id string) {
	if s.cache != nil {
		s.cache.Delete(id)
	}
}
