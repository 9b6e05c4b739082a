package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/clockx"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/idx"
	"github.com/aussiebroadwan/walletauth/pkg/siwe"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultOpTimeout    = 5 * time.Second
	DefaultChainID      = 1
)

// ChallengeManager issues sign-in challenges and verifies signed responses.
// It is built once at startup and shared by every request.
type ChallengeManager struct {
	Store    store.Store
	Limiter  ratelimit.Limiter
	Verifier ethx.SignatureVerifier
	Clock    clockx.Clock

	// Domain and URI are embedded in every message so a signature for one
	// site can't be replayed against another.
	Domain    string
	URI       string
	Statement string

	TTL       time.Duration
	OpTimeout time.Duration
}

type IssueRequest struct {
	Address   string
	ChainID   int64
	Statement string // overrides the default statement when set
	IPAddress string
	UserAgent string
}

type VerifyRequest struct {
	Message   string
	Signature string
	IPAddress string
}

// VerifyResult is what a successful verification proves.
type VerifyResult struct {
	ChallengeID string
	Address     string
	ChainID     int64
}

func (m *ChallengeManager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	// Stored and rendered timestamps carry millisecond precision.
	return m.Clock.Now().UTC().Truncate(time.Millisecond)
}

func (m *ChallengeManager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultChallengeTTL
	}
	return m.TTL
}

func (m *ChallengeManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, m.OpTimeout)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultOpTimeout
	}
	return context.WithTimeout(ctx, d)
}

// IssueChallenge creates a fresh challenge for an address, replacing any
// unused one still outstanding.
func (m *ChallengeManager) IssueChallenge(ctx context.Context, req IssueRequest) (domain.Challenge, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	l := slogx.FromContext(ctx)

	address, err := ethx.NormalizeAddress(req.Address)
	if err != nil {
		return domain.Challenge{}, ErrInvalidAddress
	}

	chainID := req.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}
	if chainID < 0 {
		return domain.Challenge{}, ErrInvalidRequest
	}

	statement := req.Statement
	if statement == "" {
		statement = m.Statement
	}
	if strings.ContainsAny(statement, "\r\n") {
		return domain.Challenge{}, ErrInvalidRequest
	}

	if err := m.recordAttempts(ctx, address, req.IPAddress); err != nil {
		return domain.Challenge{}, err
	}

	nonce, err := cryptox.GenerateNonce(cryptox.TokenSize128)
	if err != nil {
		return domain.Challenge{}, err
	}

	now := m.now()
	expiresAt := now.Add(m.ttl())

	msg := siwe.Message{
		Domain:         m.Domain,
		Address:        ethx.ChecksumAddress(address),
		Statement:      statement,
		URI:            m.URI,
		Version:        siwe.Version,
		ChainID:        chainID,
		Nonce:          nonce,
		IssuedAt:       now,
		ExpirationTime: expiresAt,
	}

	c := domain.Challenge{
		ID:        idx.NewAt(now).String(),
		Address:   address,
		Nonce:     nonce,
		Message:   msg.String(),
		ChainID:   chainID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Challenges().DeleteUnusedChallenges(ctx, address); err != nil {
			return err
		}
		return tx.Challenges().CreateChallenge(ctx, c)
	})
	if err != nil {
		l.Error("failed to store challenge", slog.String("address", address), slog.Any("error", err))
		return domain.Challenge{}, storageErr(err)
	}

	l.Info("challenge issued",
		slog.String("challenge_id", c.ID),
		slog.String("address", address),
		slog.Time("expires_at", expiresAt))
	return c, nil
}

// Verify checks a signed message against its stored challenge without
// consuming it. The returned PendingChallenge must be committed for the
// challenge to count as used; until then a retry with the same signature
// still works, but only until the challenge expires.
func (m *ChallengeManager) Verify(ctx context.Context, req VerifyRequest) (*PendingChallenge, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	l := slogx.FromContext(ctx)

	if err := m.checkBlocked(ctx, req.IPAddress, domain.KindIP); err != nil {
		return nil, err
	}

	parsed, err := siwe.Parse(req.Message)
	if err != nil {
		m.recordFailure(ctx, "", req.IPAddress)
		return nil, ErrChallengeNotFound
	}
	address, err := ethx.NormalizeAddress(parsed.Address)
	if err != nil {
		m.recordFailure(ctx, "", req.IPAddress)
		return nil, ErrChallengeNotFound
	}

	if err := m.checkBlocked(ctx, address, domain.KindAddress); err != nil {
		return nil, err
	}

	fail := func(reason error) (*PendingChallenge, error) {
		l.Info("challenge verification failed",
			slog.String("address", address),
			slog.String("reason", reason.Error()))
		m.recordFailure(ctx, address, req.IPAddress)
		return nil, reason
	}

	c, err := m.Store.Challenges().GetChallengeByNonce(ctx, parsed.Nonce)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ErrChallengeNotFound)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if c.Address != address {
		return fail(ErrChallengeNotFound)
	}

	now := m.now()
	switch {
	case c.Used:
		return fail(ErrChallengeAlreadyUsed)
	case c.Expired(now):
		return fail(ErrChallengeExpired)
	case c.Message != req.Message:
		return fail(ErrMessageMismatch)
	}

	signer, err := m.Verifier.Recover(c.Message, req.Signature)
	if err != nil {
		return fail(ErrSignatureInvalid)
	}
	if signer != address {
		return fail(ErrAddressMismatch)
	}

	return &PendingChallenge{
		Challenge: c,
		DID:       domain.DIDForAddress(c.ChainID, address),
		manager:   m,
	}, nil
}

// VerifyChallenge verifies and, when markUsed is set, consumes the
// challenge in one call.
func (m *ChallengeManager) VerifyChallenge(ctx context.Context, req VerifyRequest, markUsed bool) (VerifyResult, error) {
	pending, err := m.Verify(ctx, req)
	if err != nil {
		return VerifyResult{}, err
	}
	if markUsed {
		if err := pending.Commit(ctx); err != nil {
			return VerifyResult{}, err
		}
	}
	return pending.Result(), nil
}

// MarkChallengeUsed consumes a challenge by ID. Marking an already used
// challenge is a no-op.
func (m *ChallengeManager) MarkChallengeUsed(ctx context.Context, id string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	repo := m.Store.Challenges()
	ok, err := repo.ConsumeChallenge(ctx, id, m.now())
	if err != nil {
		return storageErr(err)
	}
	if ok {
		return nil
	}

	err = m.consumeFailure(ctx, repo, id)
	if errors.Is(err, ErrChallengeAlreadyUsed) {
		return nil
	}
	return err
}

// consumeFailure explains why ConsumeChallenge changed nothing.
func (m *ChallengeManager) consumeFailure(ctx context.Context, repo store.Challenges, id string) error {
	c, err := repo.GetChallengeByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChallengeNotFound
	}
	if err != nil {
		return storageErr(err)
	}
	if c.Used {
		return ErrChallengeAlreadyUsed
	}
	return ErrChallengeExpired
}

// recordAttempts counts an issuance attempt against the address and the
// caller's IP. Both are recorded even if the first one is already blocked.
func (m *ChallengeManager) recordAttempts(ctx context.Context, address, ip string) error {
	if m.Limiter == nil {
		return nil
	}

	var retryAfter time.Duration
	blocked := false
	for _, id := range identifiers(address, ip) {
		d, err := m.Limiter.Record(ctx, id.value, id.kind)
		if err != nil {
			return storageErr(err)
		}
		if d.Blocked {
			blocked = true
			retryAfter = max(retryAfter, d.RetryAfter)
			slogx.FromContext(ctx).Warn("rate limit tripped",
				slog.String("kind", string(id.kind)),
				slog.String("identifier", id.value),
				slog.Int("attempts", d.AttemptCount))
		}
	}
	if blocked {
		return &RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}

// recordFailure counts a failed verification. Limiter errors are logged
// only; they must not mask the verification result.
func (m *ChallengeManager) recordFailure(ctx context.Context, address, ip string) {
	if m.Limiter == nil {
		return
	}
	for _, id := range identifiers(address, ip) {
		if _, err := m.Limiter.Record(ctx, id.value, id.kind); err != nil {
			slogx.FromContext(ctx).Error("failed to record rate limit attempt",
				slog.String("kind", string(id.kind)),
				slog.Any("error", err))
		}
	}
}

func (m *ChallengeManager) checkBlocked(ctx context.Context, identifier string, kind domain.IdentifierKind) error {
	if m.Limiter == nil || identifier == "" {
		return nil
	}
	d, err := m.Limiter.Status(ctx, identifier, kind)
	if err != nil {
		return storageErr(err)
	}
	if d.Blocked {
		return &RateLimitError{RetryAfter: d.RetryAfter}
	}
	return nil
}

type identifier struct {
	value string
	kind  domain.IdentifierKind
}

func identifiers(address, ip string) []identifier {
	out := make([]identifier, 0, 2)
	if address != "" {
		out = append(out, identifier{address, domain.KindAddress})
	}
	if ip != "" {
		out = append(out, identifier{ip, domain.KindIP})
	}
	return out
}

// PendingChallenge is a verified but not yet consumed challenge.
type PendingChallenge struct {
	Challenge domain.Challenge
	DID       string

	manager *ChallengeManager
}

func (p *PendingChallenge) Address() string { return p.Challenge.Address }

// ExpiresAt is the last moment Commit can succeed.
func (p *PendingChallenge) ExpiresAt() time.Time { return p.Challenge.ExpiresAt }

func (p *PendingChallenge) Result() VerifyResult {
	return VerifyResult{
		ChallengeID: p.Challenge.ID,
		Address:     p.Challenge.Address,
		ChainID:     p.Challenge.ChainID,
	}
}

// Commit consumes the challenge. Exactly one Commit per challenge succeeds;
// the rest get ErrChallengeAlreadyUsed.
func (p *PendingChallenge) Commit(ctx context.Context) error {
	ctx, cancel := p.manager.withTimeout(ctx)
	defer cancel()
	return p.commitWith(ctx, p.manager.Store.Challenges())
}

// commitWith consumes through repo so the consume can share a transaction
// with session creation.
func (p *PendingChallenge) commitWith(ctx context.Context, repo store.Challenges) error {
	ok, err := repo.ConsumeChallenge(ctx, p.Challenge.ID, p.manager.now())
	if err != nil {
		return storageErr(err)
	}
	if ok {
		return nil
	}
	return p.manager.consumeFailure(ctx, repo, p.Challenge.ID)
}
