package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
	gocache "github.com/patrickmn/go-cache"
)

// ScopeRegistry is what the grant handlers need from the scope catalogue.
type ScopeRegistry interface {
	// Validate fails with ErrInvalidScope when any scope is unknown.
	Validate(ctx context.Context, scopes []string) error

	// ResolveResources returns the ordered, de-duplicated union of the
	// resources of the given scopes.
	ResolveResources(ctx context.Context, scopes []string) ([]string, error)
}

// ScopeService is the registry of scopes backed by the store with a
// read-through cache.
type ScopeService struct {
	Store store.Store
	cache *gocache.Cache
}

var _ ScopeRegistry = (*ScopeService)(nil)

// NewScopeService caches lookups for ttl. A ttl <= 0 disables caching.
func NewScopeService(st store.Store, ttl time.Duration) *ScopeService {
	s := &ScopeService{Store: st}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

func builtinScope(name string) domain.Scope {
	return domain.Scope{Name: name, DisplayName: name}
}

// Find returns a scope by name. Built-in protocol scopes are always known.
func (s *ScopeService) Find(ctx context.Context, name string) (domain.Scope, error) {
	if domain.IsBuiltinScope(name) {
		return builtinScope(name), nil
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(name); ok {
			return v.(domain.Scope), nil
		}
	}
	sc, err := s.Store.Scopes().GetScopeByName(ctx, name)
	if err != nil {
		return domain.Scope{}, err
	}
	if s.cache != nil {
		s.cache.SetDefault(name, sc)
	}
	return sc, nil
}

func (s *ScopeService) Validate(ctx context.Context, scopes []string) error {
	for _, name := range scopes {
		if _, err := s.Find(ctx, name); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, name)
			}
			return fmt.Errorf("lookup scope %q: %w", name, err)
		}
	}
	return nil
}

func (s *ScopeService) ResolveResources(ctx context.Context, scopes []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range scopes {
		sc, err := s.Find(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, name)
			}
			return nil, fmt.Errorf("lookup scope %q: %w", name, err)
		}
		for _, r := range sc.Resources {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

// Register adds a scope. Built-in names cannot be registered.
func (s *ScopeService) Register(ctx context.Context, sc domain.Scope) error {
	if sc.Name == "" {
		return fmt.Errorf("%w: scope name is required", ErrInvalidRequest)
	}
	if domain.IsBuiltinScope(sc.Name) {
		return fmt.Errorf("%w: %q is a built-in scope", ErrInvalidRequest, sc.Name)
	}
	if err := s.Store.Scopes().CreateScope(ctx, sc); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(sc.Name)
	}
	slogx.FromContext(ctx).Info("scope registered", "scope", sc.Name, "resources", sc.Resources)
	return nil
}

// List returns the built-in scopes followed by the registered ones.
func (s *ScopeService) List(ctx context.Context) ([]domain.Scope, error) {
	stored, err := s.Store.Scopes().ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Scope{builtinScope(domain.ScopeOpenID), builtinScope(domain.ScopeOfflineAccess)}
	return append(out, stored...), nil
}
