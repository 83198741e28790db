package domain

import "time"

// Protocol scopes with special meaning in token issuance.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeRoles         = "roles"
)

// Scope is a named permission bundle and the backend resources it unlocks.
type Scope struct {
	Name        string
	DisplayName string
	Resources   []string
	CreatedAt   time.Time
}

// IsBuiltinScope reports whether name is always known to the server,
// whether or not it was registered.
func IsBuiltinScope(name string) bool {
	return name == ScopeOpenID || name == ScopeOfflineAccess
}
