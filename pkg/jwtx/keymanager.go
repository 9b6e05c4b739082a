package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
)

// KeyManager owns the signing keys of one auth instance along with the
// KeySet and Verifier built from them.
type KeyManager struct {
	KeySet   *KeySet
	Verifier *Verifier

	algorithm string
	mu        sync.RWMutex
	signers   []Signer
}

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// Algorithm is ES256 or EdDSA.
	Algorithm string

	// Issuer is stamped into and enforced on every token.
	Issuer string

	// NumKeys is how many ephemeral keys to generate (1..10, default 1).
	NumKeys int

	// Verify tweaks the verifier; Issuer is filled in from above.
	Verify VerifyOptions
}

// NewEphemeralKeyManager generates keys that only live in memory. Tokens
// stop verifying when the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	n := min(max(opts.NumKeys, 1), 10)
	pems := make([][]byte, 0, n)
	for range n {
		pemKey, err := generateKey(opts.Algorithm)
		if err != nil {
			return nil, err
		}
		pems = append(pems, pemKey)
	}
	return newKeyManager(opts, pems)
}

// NewKeyManagerFromPEM builds a KeyManager around an existing private key so
// several instances can share it. The kid is the key's thumbprint.
func NewKeyManagerFromPEM(opts KeyManagerOptions, pemKey []byte) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	return newKeyManager(opts, [][]byte{pemKey})
}

func newKeyManager(opts KeyManagerOptions, pems [][]byte) (*KeyManager, error) {
	keyset := NewKeySet()
	km := &KeyManager{KeySet: keyset, algorithm: opts.Algorithm}

	for i, pemKey := range pems {
		signer, err := NewSigner(opts.Algorithm, "", pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	vopts := opts.Verify
	vopts.Issuer = opts.Issuer
	km.Verifier = NewVerifier(keyset, vopts)
	return km, nil
}

func generateKey(alg string) ([]byte, error) {
	switch alg {
	case AlgorithmES256:
		return cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		return cryptox.GenerateEd25519Key()
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: ES256, EdDSA)", alg)
	}
}

func (km *KeyManager) Algorithm() string { return km.algorithm }

func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// GetSigner picks one of the active signers at random.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner activates signer and publishes its public key.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("jwtx: signer cannot be nil")
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddJWK(signer.PublicJWK()); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}

// Sign signs claims with a randomly chosen active key.
func (km *KeyManager) Sign(claims Claims) (string, error) {
	s := km.GetSigner()
	if s == nil {
		return "", fmt.Errorf("jwtx: no signing keys")
	}
	return s.Sign(claims)
}
