package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/walletauth/pkg/clockx"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

const testIssuer = "walletauth-test"

var testStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	base    *sqlite.Store
	store   *flakyStore
	clock   *clockx.Manual
	limiter *ratelimit.StoreLimiter
	events  *recordingPublisher
	auth    *AuthenticationService

	key     *ecdsa.PrivateKey
	address string
}

func newHarness(t *testing.T, limits ratelimit.Config) *harness {
	t.Helper()

	base, err := sqlite.NewStore(":memory:", sqlite.WithAdmin())
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })
	require.NoError(t, base.ApplyMigrations())

	clock := clockx.NewManual(testStart)
	flaky := &flakyStore{Store: base}

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    testIssuer,
		NumKeys:   1,
		Verify:    jwtx.VerifyOptions{Now: clock.Now},
	})
	require.NoError(t, err)

	fp, err := cryptox.NewFingerprinter([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	limiter := ratelimit.NewStoreLimiter(base, clock, limits)
	rec := &recordingPublisher{}

	challenges := &ChallengeManager{
		Store:     flaky,
		Limiter:   limiter,
		Verifier:  ethx.PersonalSign{},
		Clock:     clock,
		Domain:    "app.example.com",
		URI:       "https://app.example.com/login",
		Statement: "Sign in to Example.",
		TTL:       5 * time.Minute,
	}
	sessions := &SessionIssuer{
		KeyManager:    keys,
		Store:         flaky,
		Fingerprinter: fp,
		Events:        rec,
		Clock:         clock,
		Issuer:        testIssuer,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		DefaultRole:   "user",
	}

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &harness{
		base:    base,
		store:   flaky,
		clock:   clock,
		limiter: limiter,
		events:  rec,
		auth: &AuthenticationService{
			Challenges:   challenges,
			Sessions:     sessions,
			Limiter:      limiter,
			AdminEnabled: true,
		},
		key:     key,
		address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

// issue requests a challenge for the harness wallet.
func (h *harness) issue(t *testing.T) domain.Challenge {
	t.Helper()
	c, err := h.auth.IssueChallenge(context.Background(), IssueRequest{Address: h.address})
	require.NoError(t, err)
	return c
}

func (h *harness) sign(t *testing.T, message string) string {
	t.Helper()
	return signWith(t, h.key, message)
}

func signWith(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func (h *harness) login(t *testing.T) domain.SessionTokens {
	t.Helper()
	c := h.issue(t)
	tokens, err := h.auth.Login(context.Background(), LoginRequest{
		Message:   c.Message,
		Signature: h.sign(t, c.Message),
	})
	require.NoError(t, err)
	return tokens
}

// flakyStore fails the next N refresh token inserts, inside or outside a
// transaction.
type flakyStore struct {
	store.Store
	failCreates atomic.Int32
}

func (f *flakyStore) failNextCreates(n int32) { f.failCreates.Store(n) }

func (f *flakyStore) RefreshTokens() store.RefreshTokens {
	return &flakyRefreshTokens{RefreshTokens: f.Store.RefreshTokens(), parent: f}
}

func (f *flakyStore) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := f.Store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{innerTx: tx, parent: f}, nil
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := f.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// innerTx gives the embedded field a name that does not hide Tx().
type innerTx = store.Tx

type flakyTx struct {
	innerTx
	parent *flakyStore
}

func (t *flakyTx) RefreshTokens() store.RefreshTokens {
	return &flakyRefreshTokens{RefreshTokens: t.innerTx.RefreshTokens(), parent: t.parent}
}

type flakyRefreshTokens struct {
	store.RefreshTokens
	parent *flakyStore
}

var errDiskFull = errors.New("disk full")

func (r *flakyRefreshTokens) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if r.parent.failCreates.Add(-1) >= 0 {
		return errDiskFull
	}
	return r.RefreshTokens.CreateRefreshToken(ctx, t)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
