package jwtx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/tokend/pkg/cryptox"
)

// KeyManager owns the signing keys of a token server together with the
// KeySet and Verifier derived from them. Signing picks a key at random.
type KeyManager struct {
	Verifier  Verifier
	KeySet    *KeySet
	algorithm string

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures the KeyManager for a specific use case.
type KeyManagerOptions struct {
	// Algorithm is "RS256" or "ES256".
	Algorithm string

	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// Audience values (aud) that will be validated. Empty means no check.
	Audience []string

	// RSABits is the RSA key size for RS256. Defaults to 2048.
	RSABits int

	// NumKeys is how many ephemeral keys to generate. Defaults to 1, max 10.
	NumKeys int
}

// NewEphemeralKeyManager generates in-memory keys. Tokens signed with them
// stop verifying once the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	numKeys := min(max(opts.NumKeys, 1), 10)

	signers := make([]Signer, 0, numKeys)
	for i := range numKeys {
		pemKey, err := GenerateKey(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key %d: %w", i+1, err)
		}
		kid, err := generateRandomKeyID()
		if err != nil {
			return nil, err
		}
		signer, err := NewSigner(opts.Algorithm, kid, pemKey)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}

	return NewKeyManager(opts, signers...)
}

// NewKeyManager wires the given signers into a KeySet and Verifier.
func NewKeyManager(opts KeyManagerOptions, signers ...Signer) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	if len(signers) == 0 {
		return nil, errors.New("jwtx: at least one signer is required")
	}

	keyset := NewKeySet()
	for _, s := range signers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.Alg() != opts.Algorithm {
			return nil, fmt.Errorf("jwtx: signer %q uses %s, want %s", s.KID(), s.Alg(), opts.Algorithm)
		}
		if err := keyset.AddSigner(s); err != nil {
			return nil, fmt.Errorf("jwtx: add signer to keyset: %w", err)
		}
	}

	return &KeyManager{
		Verifier: NewVerifier(keyset, VerifyOptions{
			Issuer:     opts.Issuer,
			Audience:   opts.Audience,
			Algorithms: []string{opts.Algorithm},
		}),
		KeySet:    keyset,
		algorithm: opts.Algorithm,
		signers:   signers,
	}, nil
}

// GenerateKey returns a fresh PKCS8 PEM private key suitable for alg.
func GenerateKey(alg string, rsaBits int) ([]byte, error) {
	switch alg {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = cryptox.MinRSABits
		}
		return cryptox.GenerateRSAKey(rsaBits)
	case AlgorithmES256:
		return cryptox.GenerateES256Key()
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, ES256)", alg)
	}
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// GetSigner returns a randomly selected active signer.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// generateRandomKeyID creates a random key identifier.
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key ID: %w", err)
	}
	return "tokend-" + token, nil
}
