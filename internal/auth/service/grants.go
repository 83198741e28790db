package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

// authenticateFor authenticates the client of a token request and checks
// it may use grant.
func authenticateFor(ctx context.Context, clients ClientRegistry, req domain.TokenRequest, grant domain.GrantType) (domain.Client, error) {
	c, err := clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return domain.Client{}, err
	}
	if !c.AllowsGrant(grant) {
		return domain.Client{}, fmt.Errorf("%w: client may not use %s", ErrUnauthorizedClient, grant)
	}
	return c, nil
}

// grantScopes intersects the requested scopes with what the client may
// have, keeping request order. Asking for scopes and getting none is an
// error; asking for none grants none.
func grantScopes(requested, allowed []string) ([]string, error) {
	granted := intersectScopes(requested, allowed)
	if len(requested) > 0 && len(granted) == 0 {
		return nil, fmt.Errorf("%w: none of the requested scopes are allowed for this client", ErrInvalidScope)
	}
	return granted, nil
}

func intersectScopes(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isSubset(sub, super []string) bool {
	set := make(map[string]struct{}, len(super))
	for _, s := range super {
		set[s] = struct{}{}
	}
	for _, s := range sub {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

func verifyCodeVerifier(challenge, method, verifier string) bool {
	challenge = strings.TrimSpace(challenge)
	if challenge == "" {
		// No PKCE challenge stored; accept regardless of verifier.
		return true
	}

	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return false
	}

	switch method {
	case "", domain.PKCEMethodPlain:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case domain.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		expected := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
	default:
		return false
	}
}

func nowFrom(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}
