package http

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

const (
	testIssuer     = "walletauth-test"
	testAdminToken = "let-me-in"
)

type testEnv struct {
	store  *sqlite.Store
	auth   *service.AuthenticationService
	client *authsdk.SDKClient

	key     *ecdsa.PrivateKey
	address string
}

type envOption func(*Router)

func withAdmin(r *Router) { r.AdminToken = testAdminToken }

func newTestEnv(t *testing.T, limits ratelimit.Config, opts ...envOption) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:", sqlite.WithAdmin())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    testIssuer,
		NumKeys:   1,
	})
	require.NoError(t, err)

	fp, err := cryptox.NewFingerprinter([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	limiter := ratelimit.NewStoreLimiter(st, nil, limits)

	auth := &service.AuthenticationService{
		Challenges: &service.ChallengeManager{
			Store:    st,
			Limiter:  limiter,
			Verifier: ethx.PersonalSign{},
			Domain:   "app.example.com",
			URI:      "https://app.example.com/login",
		},
		Sessions: &service.SessionIssuer{
			KeyManager:    keys,
			Store:         st,
			Fingerprinter: fp,
			Events:        events.Nop{},
			Issuer:        testIssuer,
		},
		Limiter:      limiter,
		AdminEnabled: true,
	}

	router := NewRouter(auth, keys.KeySet, "test", st, slogx.Discard())
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := authsdk.NewSDKClient(srv.URL)
	client.AdminToken = testAdminToken

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &testEnv{
		store:   st,
		auth:    auth,
		client:  client,
		key:     key,
		address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

func (e *testEnv) sign(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), e.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func (e *testEnv) url(path string) string { return e.client.BaseURL + path }

func TestLoginFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.DefaultConfig())

	session, err := env.client.SignIn(ctx, env.address, 1, env.sign)
	require.NoError(t, err)

	info, err := session.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.address, info.Address)
	assert.Equal(t, "did:pkh:eip155:1:"+env.address, info.DID)
	assert.Equal(t, service.DefaultRole, info.Role)
	assert.NotEmpty(t, info.SessionID)
	assert.WithinDuration(t, info.IssuedAt.Add(jwtx.DefaultAccessTokenTTL), info.ExpiresAt, time.Second)

	t.Run("RefreshRotates", func(t *testing.T) {
		old := session.RefreshToken()
		require.NoError(t, session.Refresh(ctx))
		assert.NotEqual(t, old, session.RefreshToken())

		_, err := env.client.Refresh(ctx, old)
		assert.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)

		again, err := session.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, info.SessionID, again.SessionID)
	})

	t.Run("LogoutAll", func(t *testing.T) {
		current := session.RefreshToken()

		n, err := session.LogoutAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = env.client.Refresh(ctx, current)
		assert.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)
	})
}

func TestLoginErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.DefaultConfig())

	t.Run("WrongSigner", func(t *testing.T) {
		challenge, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: env.address})
		require.NoError(t, err)

		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Message)), other)
		require.NoError(t, err)
		sig[64] += 27

		_, err = env.client.Login(ctx, challenge.Message, hexutil.Encode(sig))
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, authsdk.ErrorCodeVerificationFailed, apiErr.Code)
		assert.Equal(t, "verification failed", apiErr.Description)
	})

	t.Run("ReplayedSignature", func(t *testing.T) {
		challenge, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: env.address})
		require.NoError(t, err)
		sig, err := env.sign(challenge.Message)
		require.NoError(t, err)

		_, err = env.client.Login(ctx, challenge.Message, sig)
		require.NoError(t, err)

		_, err = env.client.Login(ctx, challenge.Message, sig)
		assert.ErrorIs(t, err, authsdk.ErrVerificationFailed)
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := env.client.Login(ctx, "", "")
		assert.ErrorIs(t, err, authsdk.ErrInvalidRequest)
	})

	t.Run("UnknownField", func(t *testing.T) {
		resp, err := http.Post(env.url("/v1/auth/login"), "application/json",
			strings.NewReader(`{"message":"m","signature":"s","role":"admin"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestChallengeEndpoint(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.DefaultConfig())

	t.Run("ChecksummedMessage", func(t *testing.T) {
		challenge, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{
			Address: "0x" + strings.ToUpper(env.address[2:]),
			ChainID: 137,
		})
		require.NoError(t, err)

		assert.Contains(t, challenge.Message, ethx.ChecksumAddress(env.address))
		assert.Contains(t, challenge.Message, "Chain ID: 137")
		assert.Regexp(t, `(?m)^Nonce: [0-9a-f]{32}$`, challenge.Message)
		assert.True(t, challenge.ExpiresAt.After(time.Now()))
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		_, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: "0x1234"})
		assert.ErrorIs(t, err, authsdk.ErrInvalidAddress)
	})

	t.Run("NoStoreHeaders", func(t *testing.T) {
		resp, err := http.Post(env.url("/v1/auth/challenge"), "application/json",
			strings.NewReader(fmt.Sprintf(`{"address":%q}`, env.address)))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("NonceOnlyInsideMessage", func(t *testing.T) {
		resp, err := http.Post(env.url("/v1/auth/challenge"), "application/json",
			strings.NewReader(fmt.Sprintf(`{"address":%q}`, env.address)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotContains(t, body, "nonce")
		assert.ElementsMatch(t, []string{"challengeId", "message", "expiresAt"}, jsonKeys(body))
	})
}

func jsonKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRateLimiting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.Config{MaxAttempts: 2, Window: time.Hour}, withAdmin)

	for range 2 {
		_, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: env.address})
		require.NoError(t, err)
	}

	_, err := env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: env.address})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "too many attempts, try again later", apiErr.Description)
	assert.Greater(t, apiErr.RetryAfter, time.Duration(0))

	// Both the wallet and the caller's IP tripped; clear both.
	require.NoError(t, env.client.ClearRateLimit(ctx, "address", env.address))
	require.NoError(t, env.client.ClearRateLimit(ctx, "ip", "127.0.0.1"))

	_, err = env.client.RequestChallenge(ctx, authsdk.ChallengeRequest{Address: env.address})
	assert.NoError(t, err)
}

func TestAdminRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("NotRegisteredWithoutToken", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.DefaultConfig())

		err := env.client.ClearRateLimit(ctx, "ip", "127.0.0.1")
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("NotRegisteredWhenServiceDisallows", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.DefaultConfig(), func(r *Router) {
			r.AdminToken = testAdminToken
			r.Auth.AdminEnabled = false
		})

		err := env.client.ClearRateLimit(ctx, "ip", "127.0.0.1")
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("WrongToken", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.DefaultConfig(), withAdmin)
		env.client.AdminToken = "guess"

		err := env.client.ClearRateLimit(ctx, "ip", "127.0.0.1")
		assert.ErrorIs(t, err, authsdk.ErrForbidden)
	})

	t.Run("BadKind", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.DefaultConfig(), withAdmin)

		err := env.client.ClearRateLimit(ctx, "email", "someone")
		assert.ErrorIs(t, err, authsdk.ErrInvalidRequest)
	})

	t.Run("BadAddress", func(t *testing.T) {
		env := newTestEnv(t, ratelimit.DefaultConfig(), withAdmin)

		err := env.client.ClearRateLimit(ctx, "address", "not-a-wallet")
		assert.ErrorIs(t, err, authsdk.ErrInvalidAddress)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.DefaultConfig())

	t.Run("UnknownTokenIsNoContent", func(t *testing.T) {
		assert.NoError(t, env.client.Logout(ctx, "never-issued"))
	})

	t.Run("RevokesRefreshToken", func(t *testing.T) {
		session, err := env.client.SignIn(ctx, env.address, 1, env.sign)
		require.NoError(t, err)
		refresh := session.RefreshToken()

		require.NoError(t, session.Logout(ctx))
		_, err = env.client.Refresh(ctx, refresh)
		assert.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)

		// The access token keeps working until it expires.
		_, err = env.client.NewSessionFromTokens(session.AccessToken(), "", 900).Info(ctx)
		assert.NoError(t, err)
	})
}

func TestBearerRoutes(t *testing.T) {
	env := newTestEnv(t, ratelimit.DefaultConfig())

	for _, tc := range []struct {
		name   string
		header string
	}{
		{"Missing", ""},
		{"WrongScheme", "Basic Zm9vOmJhcg=="},
		{"Garbage", "Bearer not-a-jwt"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.url("/v1/auth/session"), nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
		})
	}
}

func TestHealthAndJWKS(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ratelimit.DefaultConfig())

	live, err := env.client.GetLiveness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", live.Status)
	assert.Equal(t, "test", live.Version)

	ready, err := env.client.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Checks.Database)
	assert.Equal(t, "ok", ready.Checks.Signer)

	t.Run("VerifierFromJWKS", func(t *testing.T) {
		session, err := env.client.SignIn(ctx, env.address, 1, env.sign)
		require.NoError(t, err)

		verifier, err := env.client.NewVerifier(ctx, testIssuer)
		require.NoError(t, err)

		claims, err := verifier.Verify(session.AccessToken())
		require.NoError(t, err)
		assert.Equal(t, env.address, claims.Subject)
	})

	t.Run("DegradedWhenStoreClosed", func(t *testing.T) {
		require.NoError(t, env.store.Close())

		health, err := env.client.GetReadiness(ctx)
		assert.ErrorIs(t, err, authsdk.ErrServiceUnavailable)
		require.NotNil(t, health)
		assert.Equal(t, "degraded", health.Status)
		assert.Equal(t, "error", health.Checks.Database)
	})
}

func TestSwaggerDocs(t *testing.T) {
	env := newTestEnv(t, ratelimit.DefaultConfig())

	resp, err := http.Get(env.url("/swagger/doc.json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	for _, path := range []string{
		"/v1/auth/challenge",
		"/v1/auth/login",
		"/v1/auth/refresh",
		"/v1/auth/logout",
		"/v1/auth/logout-all",
		"/v1/auth/session",
		"/v1/admin/rate-limits/{kind}/{identifier}",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}

func TestAPIError(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		status int
		code   string
		desc   string
	}{
		{"RateLimited", &service.RateLimitError{RetryAfter: 90 * time.Second}, 429, authsdk.ErrorCodeRateLimited, "too many attempts, try again later"},
		{"Expired", service.ErrChallengeExpired, 401, authsdk.ErrorCodeVerificationFailed, "verification failed"},
		{"SignatureInvalid", fmt.Errorf("login: %w", service.ErrSignatureInvalid), 401, authsdk.ErrorCodeVerificationFailed, "verification failed"},
		{"Refresh", service.ErrInvalidRefreshToken, 401, authsdk.ErrorCodeInvalidRefreshToken, "invalid refresh token"},
		{"Session", fmt.Errorf("%w: %w", service.ErrSessionCreationFailed, errors.New("disk full")), 500, authsdk.ErrorCodeSessionCreationFailed, "could not create session, please retry"},
		{"Storage", fmt.Errorf("%w: %w", service.ErrStorageUnavailable, errors.New("database is locked")), 503, authsdk.ErrorCodeServiceUnavailable, "service temporarily unavailable"},
		{"Address", service.ErrInvalidAddress, 400, authsdk.ErrorCodeInvalidAddress, "invalid wallet address"},
		{"Admin", service.ErrAdminDisabled, 404, authsdk.ErrorCodeNotFound, "not available"},
		{"Unknown", errors.New("boom"), 500, authsdk.ErrorCodeServerError, "internal error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := apiError(tc.err)
			assert.Equal(t, tc.status, got.StatusCode)
			assert.Equal(t, tc.code, got.Code)
			assert.Equal(t, tc.desc, got.Description)
		})
	}

	t.Run("RetryAfterHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		writeServiceError(rec, req, &service.RateLimitError{RetryAfter: 90 * time.Second})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "90", rec.Header().Get("Retry-After"))
		assert.NotContains(t, rec.Body.String(), "ADDRESS")
	})
}
