package ethx_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := ethx.NormalizeAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	require.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", got)

	for _, bad := range []string{"", "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0x1234", "0xZZaeb6053F3E94C9b9A09f33669435E7Ef1BeAed"} {
		_, err := ethx.NormalizeAddress(bad)
		require.ErrorIs(t, err, ethx.ErrInvalidAddress, bad)
	}
}

func TestChecksumAddress(t *testing.T) {
	require.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ethx.ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
	)
}

func TestPersonalSign_Recover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	msg := "hello wallet"
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(t, err)

	var v ethx.PersonalSign

	t.Run("raw recovery id", func(t *testing.T) {
		got, err := v.Recover(msg, hexutil.Encode(sig))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("wallet style v", func(t *testing.T) {
		walletSig := append([]byte(nil), sig...)
		walletSig[64] += 27
		got, err := v.Recover(msg, hexutil.Encode(walletSig))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("different message recovers someone else", func(t *testing.T) {
		got, err := v.Recover("another message", hexutil.Encode(sig))
		if err == nil {
			require.NotEqual(t, want, got)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, s := range []string{"", "0x1234", "zz", hexutil.Encode(make([]byte, 65))} {
			_, err := v.Recover(msg, s)
			require.ErrorIs(t, err, ethx.ErrInvalidSignature, s)
		}
	})
}
