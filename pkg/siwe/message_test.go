package siwe_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/walletauth/pkg/siwe"
	"github.com/stretchr/testify/require"
)

func sample() siwe.Message {
	issued := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return siwe.Message{
		Domain:         "app.example.com",
		Address:        "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Statement:      "Sign in to Example.",
		URI:            "https://app.example.com",
		Version:        siwe.Version,
		ChainID:        1,
		Nonce:          "8f14e45fceea167a5a36dedd4bea2543",
		IssuedAt:       issued,
		ExpirationTime: issued.Add(5 * time.Minute),
	}
}

func TestString_Layout(t *testing.T) {
	want := strings.Join([]string{
		"app.example.com wants you to sign in with your Ethereum account:",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"",
		"Sign in to Example.",
		"",
		"URI: https://app.example.com",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: 8f14e45fceea167a5a36dedd4bea2543",
		"Issued At: 2025-03-01T10:00:00.000Z",
		"Expiration Time: 2025-03-01T10:05:00.000Z",
	}, "\n")
	require.Equal(t, want, sample().String())
}

func TestParse_RoundTrip(t *testing.T) {
	t.Run("with statement", func(t *testing.T) {
		m := sample()
		got, err := siwe.Parse(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	})

	t.Run("without statement", func(t *testing.T) {
		m := sample()
		m.Statement = ""
		got, err := siwe.Parse(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	})
}

func TestParse_Malformed(t *testing.T) {
	valid := sample().String()

	cases := map[string]string{
		"empty":        "",
		"bad header":   strings.Replace(valid, "wants you to sign in", "please sign", 1),
		"no nonce":     strings.Replace(valid, "Nonce: ", "Nonsense: ", 1),
		"bad chain":    strings.Replace(valid, "Chain ID: 1", "Chain ID: one", 1),
		"bad version":  strings.Replace(valid, "Version: 1", "Version: 2", 1),
		"bad issuedAt": strings.Replace(valid, "2025-03-01T10:00:00.000Z", "yesterday", 1),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := siwe.Parse(text)
			require.ErrorIs(t, err, siwe.ErrMalformed)
		})
	}
}
