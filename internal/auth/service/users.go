package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/idx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 5 * time.Minute
)

// UserStore is what the grant handlers need from the user directory.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	VerifyPassword(u domain.User, password string) bool

	// RecordFailedAttempt bumps the failed count and locks the account once
	// the configured limit is reached.
	RecordFailedAttempt(ctx context.Context, id string, now time.Time) (domain.User, error)
	ResetFailedAttempts(ctx context.Context, id string) error
}

type UserService struct {
	Store store.Store

	// MaxFailedAttempts <= 0 disables lockout.
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

var _ UserStore = (*UserService)(nil)

func (s *UserService) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
}

func (s *UserService) FindByID(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, id)
}

func (s *UserService) VerifyPassword(u domain.User, password string) bool {
	return cryptox.VerifyPassword(password, u.PasswordHash) == nil
}

func (s *UserService) RecordFailedAttempt(ctx context.Context, id string, now time.Time) (domain.User, error) {
	lockout := s.LockoutDuration
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return s.Store.Users().RecordFailedAttempt(ctx, id, now, s.MaxFailedAttempts, lockout)
}

func (s *UserService) ResetFailedAttempts(ctx context.Context, id string) error {
	return s.Store.Users().ResetFailedAttempts(ctx, id)
}

// Create hashes the password and stores a new user with a fresh security stamp.
func (s *UserService) Create(ctx context.Context, username, email, password string, roles []string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	stamp, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.User{}, fmt.Errorf("generate security stamp: %w", err)
	}

	now := time.Now()
	u := domain.User{
		ID:            idx.New().String(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		Roles:         roles,
		SecurityStamp: stamp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *UserService) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return s.Store.Users().SetUserDisabled(ctx, id, disabled)
}

// canSignIn is the gate every grant applies to a resolved user.
func canSignIn(u domain.User, now time.Time) error {
	if u.Disabled {
		return fmt.Errorf("%w: user is disabled", ErrInvalidGrant)
	}
	if u.IsLockedOut(now) {
		return fmt.Errorf("%w: locked until %s", ErrAccountLocked, u.LockoutUntil.Format(time.RFC3339))
	}
	return nil
}

// signIn checks a username and password the way both the password grant
// and the authorize endpoint need: unknown and disabled users are
// invalid_grant, a lockout is reported before the password is looked at,
// and a bad password is counted.
func signIn(ctx context.Context, users UserStore, username, password string, now time.Time) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(username) == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}

	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: invalid username or password", ErrInvalidGrant)
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := canSignIn(u, now); err != nil {
		l.Info("sign-in refused", "user_id", u.ID, "error", err)
		return domain.User{}, err
	}

	if !users.VerifyPassword(u, password) {
		updated, err := users.RecordFailedAttempt(ctx, u.ID, now)
		if err != nil {
			return domain.User{}, fmt.Errorf("record failed attempt: %w", err)
		}
		l.Info("invalid password",
			"user_id", u.ID,
			"failed_count", updated.AccessFailedCount,
			"locked", updated.IsLockedOut(now),
		)
		return domain.User{}, fmt.Errorf("%w: invalid username or password", ErrInvalidGrant)
	}

	if u.AccessFailedCount > 0 {
		if err := users.ResetFailedAttempts(ctx, u.ID); err != nil {
			return domain.User{}, fmt.Errorf("reset failed attempts: %w", err)
		}
	}
	return u, nil
}
