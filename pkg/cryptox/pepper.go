package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const pepperSize = 32

// LoadOrCreatePepper reads the base64url pepper stored at path, generating
// and persisting a new one if the file does not exist yet. Losing the file
// invalidates every stored refresh token fingerprint.
func LoadOrCreatePepper(path string) ([]byte, error) {
	path = filepath.Clean(path)

	raw, err := os.ReadFile(path)
	if err == nil {
		pepper, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("cryptox: decode pepper %s: %w", path, err)
		}
		if len(pepper) < 16 {
			return nil, fmt.Errorf("cryptox: pepper %s is too short", path)
		}
		return pepper, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	pepper := make([]byte, pepperSize)
	if _, err := rand.Read(pepper); err != nil {
		return nil, err
	}
	encoded := base64.RawURLEncoding.EncodeToString(pepper)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, err
	}
	return pepper, nil
}

// Fingerprinter hashes opaque tokens with a keyed BLAKE2b-256 so a leaked
// database alone is not enough to test guesses offline.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter keyed with pepper. An empty pepper
// falls back to plain SHA-256.
func NewFingerprinter(pepper []byte) (*Fingerprinter, error) {
	if len(pepper) > blake2b.Size {
		return nil, fmt.Errorf("cryptox: pepper longer than %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: pepper}, nil
}

// Fingerprint returns the base64url digest of token.
func (f *Fingerprinter) Fingerprint(token string) string {
	if f == nil || len(f.key) == 0 {
		return FingerprintToken(token)
	}

	h, err := blake2b.New256(f.key)
	if err != nil {
		// Key length is checked in NewFingerprinter.
		panic(err)
	}
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
