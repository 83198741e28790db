// Package authz evaluates scope requirements against the scope claim of a
// verified token. It knows nothing about HTTP; see httpx.RequireScopes.
package authz

import "strings"

// Decision is the outcome of a scope check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Principal is anything that exposes the raw space-delimited scope claim.
// ok is false when the claim is absent from the token.
type Principal interface {
	ScopeClaim() (raw string, ok bool)
}

// Authorize allows the caller only if every required scope is present in
// its scope claim. A missing scope claim is a Deny, never "unrestricted".
// It is a pure function so it is safe to evaluate on every request.
func Authorize(p Principal, required ...string) Decision {
	if p == nil {
		return Deny
	}
	raw, ok := p.ScopeClaim()
	if !ok {
		return Deny
	}

	have := strings.Fields(raw)
	for _, want := range required {
		if !contains(have, want) {
			return Deny
		}
	}
	return Allow
}

func contains(have []string, want string) bool {
	for _, s := range have {
		if s == want {
			return true
		}
	}
	return false
}

// Scopes is a Principal backed by an already-split scope list. A nil
// Scopes still counts as a present, empty claim.
type Scopes []string

func (s Scopes) ScopeClaim() (string, bool) {
	return strings.Join(s, " "), true
}
