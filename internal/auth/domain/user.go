package domain

import "time"

type User struct {
	ID                string
	Username          string // unique, compared case-insensitively
	Email             string
	PasswordHash      string // argon2id PHC
	Roles             []string
	SecurityStamp     string // rotated when credentials change; never put in tokens
	LockoutUntil      *time.Time
	AccessFailedCount int
	Disabled          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLockedOut reports whether a lockout is still running at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}
