package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values the token must contain (claims.aud). Empty means "don't care".
	Audience []string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// Algorithms accepted in the token header. Defaults to RS256 and ES256.
	Algorithms []string
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrUnknownKID = errors.New("jwtx: unknown kid")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// KeySetVerifier checks signatures against the public keys in a KeySet.
type KeySetVerifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifier returns a Verifier backed by keys.
func NewVerifier(keys *KeySet, opts VerifyOptions) *KeySetVerifier {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []string{AlgorithmRS256, AlgorithmES256}
	}
	return &KeySetVerifier{keys: keys, opts: opts}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *KeySetVerifier) Verify(tokenStr string) (Claims, error) {
	// Expiry is checked below with our own leeway so the error is one of ours.
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.opts.Algorithms),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrMalformed)
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.opts.Leeway); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
