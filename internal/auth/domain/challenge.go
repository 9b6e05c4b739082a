package domain

import (
	"fmt"
	"time"
)

// Challenge is a single-use sign-in challenge bound to one wallet address.
type Challenge struct {
	ID        string
	Address   string // lowercase 0x-prefixed
	Nonce     string
	Message   string // exact text the wallet must sign
	ChainID   int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	IPAddress string
	UserAgent string
}

// Expired reports whether the challenge can no longer be verified at now.
// A challenge is still valid at exactly ExpiresAt.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DIDForAddress builds the did:pkh identifier for an EVM account.
func DIDForAddress(chainID int64, address string) string {
	return fmt.Sprintf("did:pkh:eip155:%d:%s", chainID, address)
}
