// Package ethx wraps the go-ethereum primitives needed to authenticate a
// wallet: address normalisation and EIP-191 personal_sign recovery.
package ethx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress   = errors.New("ethx: invalid address")
	ErrInvalidSignature = errors.New("ethx: invalid signature")
)

// NormalizeAddress validates a 0x-prefixed hex address and returns it in
// lowercase, the canonical form used for storage and comparison.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// ChecksumAddress renders addr in EIP-55 mixed case.
func ChecksumAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// SignatureVerifier recovers the signer of a message.
type SignatureVerifier interface {
	// Recover returns the lowercase address that produced signature over
	// message, or ErrInvalidSignature.
	Recover(message, signature string) (string, error)
}

// PersonalSign verifies EIP-191 "personal_sign" signatures, which is what
// wallets produce for SIWE messages.
type PersonalSign struct{}

func (PersonalSign) Recover(message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	// Wallets emit V as 27/28; SigToPub wants the raw recovery id.
	switch sig[crypto.RecoveryIDOffset] {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] -= 27
	default:
		return nil, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}
	return sig, nil
}
