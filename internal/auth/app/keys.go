package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
)

// InitAuthKeys builds the KeyManager that signs every token.
//
// With KeyFile set the PEM private key is loaded from disk and its kid is
// derived from the key, so tokens survive restarts. Otherwise NumKeys keys
// are generated in memory and all tokens become invalid on restart.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	}

	if cfg.KeyFile == "" {
		km, err := jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Info("generated ephemeral signing keys",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"issuer", cfg.Issuer,
		)
		logger.Warn("tokens issued by this process stop verifying after a restart")
		return km, nil
	}

	pemKey, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	kid := "tokend-" + cryptox.FingerprintToken(string(pemKey))[:16]
	signer, err := jwtx.NewSigner(cfg.Algorithm, kid, pemKey)
	if err != nil {
		return nil, fmt.Errorf("load signing key %s: %w", cfg.KeyFile, err)
	}
	km, err := jwtx.NewKeyManager(opts, signer)
	if err != nil {
		return nil, err
	}

	logger.Info("loaded signing key", "algorithm", km.Algorithm(), "kid", kid, "issuer", cfg.Issuer)
	return km, nil
}
