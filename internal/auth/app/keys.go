package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

// InitAuthKeys builds the access token KeyManager.
//
// With AUTH_SIGNING_KEY_FILE set every instance signs with the same PEM key,
// so tokens survive restarts and verify anywhere. Otherwise keys are
// generated in memory on startup and outstanding access tokens stop
// verifying when the process exits. Refresh tokens are unaffected either way.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		NumKeys:   cfg.NumKeys,
	}

	if cfg.SigningKeyFile != "" {
		pemKey, err := os.ReadFile(filepath.Clean(cfg.SigningKeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key: %w", err)
		}

		km, err := jwtx.NewKeyManagerFromPEM(opts, pemKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}

		logger.Info("loaded signing key from file",
			"algorithm", km.Algorithm(),
			"issuer", cfg.Issuer,
		)
		return km, nil
	}

	km, err := jwtx.NewEphemeralKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", km.Algorithm(),
		"num_keys", km.NumSigners(),
		"issuer", cfg.Issuer,
	)
	if cfg.Env == "prod" {
		logger.Warn("ephemeral signing keys in prod: access tokens will not verify across restarts or instances")
	}
	return km, nil
}
