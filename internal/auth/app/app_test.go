package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Issuer:               "walletauth-test",
		Domain:               "app.example.com",
		URI:                  "https://app.example.com",
		Algorithm:            "EdDSA",
		NumKeys:              2,
		DatabaseFile:         filepath.Join(dir, "walletauth.db"),
		PepperFile:           filepath.Join(dir, "secrets", "pepper"),
		OpTimeout:            5 * time.Second,
		RateLimit:            ratelimit.DefaultConfig(),
		RateLimitBackend:     BackendSQLite,
		EventsBackend:        BackendMemory,
		Env:                  "dev",
		LogLevel:             "error",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func newTestApp(t *testing.T, cfg Config) (*Application, *authsdk.SDKClient) {
	t.Helper()

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.closeAll() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	client := authsdk.NewSDKClient(srv.URL)
	client.AdminToken = cfg.AdminToken
	return application, client
}

func TestApplicationSignIn(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	application, client := newTestApp(t, cfg)

	// The pepper is created on first start.
	_, err := os.Stat(cfg.PepperFile)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	session, err := client.SignIn(ctx, address, 1, func(msg string) (string, error) {
		sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
		if err != nil {
			return "", err
		}
		sig[64] += 27
		return hexutil.Encode(sig), nil
	})
	require.NoError(t, err)

	info, err := session.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, address, info.Address)

	claims, err := application.keyManager.Verifier.Verify(session.AccessToken())
	require.NoError(t, err)
	assert.Equal(t, "walletauth-test", claims.Issuer)

	jwks, err := client.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Len(t, jwks.Keys, 2)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Status)
}

func TestApplicationAdminGating(t *testing.T) {
	ctx := context.Background()

	t.Run("DevWithToken", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AdminToken = "dev-token"
		_, client := newTestApp(t, cfg)

		assert.NoError(t, client.ClearRateLimit(ctx, "ip", "127.0.0.1"))
	})

	t.Run("ProdIgnoresToken", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Env = "prod"
		cfg.AdminToken = "prod-token"
		application, client := newTestApp(t, cfg)

		err := client.ClearRateLimit(ctx, "ip", "127.0.0.1")
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)

		_, err = application.db.Admin()
		assert.Error(t, err)
	})
}

func TestInitAuthKeysFromFile(t *testing.T) {
	pemKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pemKey, 0o600))

	cfg := testConfig(t)
	cfg.Algorithm = "ES256"
	cfg.SigningKeyFile = path

	app1, _ := newTestApp(t, cfg)
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "other.db")
	app2, _ := newTestApp(t, cfg)

	// Two instances sharing the key verify each other's tokens.
	assert.Equal(t, app1.keyManager.KeySet.PublicJWKS(), app2.keyManager.KeySet.PublicJWKS())

	t.Run("MissingFile", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SigningKeyFile = filepath.Join(t.TempDir(), "nope.pem")
		_, err := New(cfg)
		assert.ErrorContains(t, err, "signing key")
	})
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/walletauth/auth.db")
	assert.True(t, strings.HasPrefix(dsn, "file:/var/lib/walletauth/auth.db?"))
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	application, _ := newTestApp(t, testConfig(t))

	out := &syncBuffer{}
	application.logger = slog.New(slog.NewJSONHandler(out, nil))
	require.NoError(t, application.startAuditLog(ctx))

	require.NoError(t, application.publisher.Publish(ctx, events.Event{
		Type:      events.TypeSessionCreated,
		Address:   "0xabc",
		SessionID: "s1",
	}))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"type":"auth.session.created"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownWithoutRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChallengeTTL = 20 * time.Minute

	application, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, application.housekeepingService.Grace)

	done := make(chan error, 1)
	go func() { done <- application.Shutdown() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown blocked without Run")
	}
}
