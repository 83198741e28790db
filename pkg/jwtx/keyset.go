package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds all public verification keys in memory. The token server
// publishes it as the JWKS and resource handlers verify against it.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]any // kid: *rsa.PublicKey | *ecdsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

// AddSigner registers a Signer's public JWK into the KeySet.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, dup := k.pub[j.Kid]; dup {
		return fmt.Errorf("jwtx: duplicate kid %q", j.Kid)
	}
	k.pub[j.Kid] = key
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS for HTTP serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]JWK, len(k.jks.Keys))
	copy(keys, k.jks.Keys)
	return JWKS{Keys: keys}
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS fetched from a token server.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	newMap := make(map[string]any, len(jwks.Keys))
	for _, j := range jwks.Keys {
		key, err := parseJWKToKey(j)
		if err != nil {
			return err
		}
		newMap[j.Kid] = key
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = newMap
	k.jks = jwks
	return nil
}

// parseJWKToKey converts a JWK into a crypto public key.
func parseJWKToKey(j JWK) (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		return &rsa.PublicKey{N: n, E: int(e)}, nil

	case "EC":
		if j.Crv != "P-256" {
			return nil, errors.New("jwtx: unsupported EC curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
}
