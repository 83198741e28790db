package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
)

// In-memory collaborators for property tests where a database per
// iteration would be too slow.

type fakeClients map[string]fakeClient

type fakeClient struct {
	domain.Client
	secret string
}

func (f fakeClients) FindByID(_ context.Context, id string) (domain.Client, error) {
	c, ok := f[id]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return c.Client, nil
}

func (f fakeClients) Authenticate(ctx context.Context, id, secret string) (domain.Client, error) {
	c, ok := f[id]
	if !ok || c.secret != secret {
		return domain.Client{}, fmt.Errorf("%w: bad credentials", ErrInvalidClient)
	}
	return c.Client, nil
}

// fakeScopes maps scope name to resources.
type fakeScopes map[string][]string

func (f fakeScopes) Validate(_ context.Context, scopes []string) error {
	for _, s := range scopes {
		if _, ok := f[s]; !ok && !domain.IsBuiltinScope(s) {
			return fmt.Errorf("%w: %q", ErrInvalidScope, s)
		}
	}
	return nil
}

func (f fakeScopes) ResolveResources(_ context.Context, scopes []string) ([]string, error) {
	var out []string
	for _, s := range scopes {
		out = append(out, f[s]...)
	}
	return dedupe(out), nil
}

// fakeUsers holds one user whose password is compared in plain text.
type fakeUsers struct {
	user     domain.User
	password string
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (domain.User, error) {
	if username != f.user.Username {
		return domain.User{}, store.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (domain.User, error) {
	if id != f.user.ID {
		return domain.User{}, store.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUsers) VerifyPassword(_ domain.User, password string) bool {
	return password == f.password
}

func (f *fakeUsers) RecordFailedAttempt(_ context.Context, _ string, _ time.Time) (domain.User, error) {
	f.user.AccessFailedCount++
	return f.user, nil
}

func (f *fakeUsers) ResetFailedAttempts(context.Context, string) error {
	f.user.AccessFailedCount = 0
	return nil
}
