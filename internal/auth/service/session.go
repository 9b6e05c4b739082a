package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/clockx"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/idx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

const DefaultRole = "user"

// SessionIssuer mints access tokens and manages the refresh tokens behind
// them.
type SessionIssuer struct {
	KeyManager    *jwtx.KeyManager
	Store         store.Store
	Fingerprinter *cryptox.Fingerprinter
	Events        events.Publisher
	Clock         clockx.Clock

	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	DefaultRole string
	OpTimeout   time.Duration
}

// SessionRequest describes who a session is for.
type SessionRequest struct {
	Address   string
	DID       string
	Role      string
	IPAddress string
	UserAgent string

	// sessionID is carried across rotations.
	sessionID string
}

// ClientMeta is recorded against refresh tokens for audit.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

func (s *SessionIssuer) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *SessionIssuer) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *SessionIssuer) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.RefreshTTL
}

func (s *SessionIssuer) fingerprint(token string) string {
	return s.Fingerprinter.Fingerprint(token)
}

// mint signs an access token and prepares, but does not store, the refresh
// token row that backs it.
func (s *SessionIssuer) mint(req SessionRequest, now time.Time) (domain.SessionTokens, domain.RefreshToken, error) {
	role := req.Role
	if role == "" {
		role = s.DefaultRole
	}
	if role == "" {
		role = DefaultRole
	}
	sessionID := req.sessionID
	if sessionID == "" {
		sessionID = idx.NewAt(now).String()
	}

	claims := jwtx.NewAccessClaims(req.Address, req.DID, role, sessionID, s.Issuer, s.accessTTL(), now)
	accessToken, err := s.KeyManager.Sign(claims)
	if err != nil {
		return domain.SessionTokens{}, domain.RefreshToken{}, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.SessionTokens{}, domain.RefreshToken{}, err
	}

	row := domain.RefreshToken{
		ID:          idx.NewAt(now).String(),
		UserAddress: req.Address,
		TokenHash:   s.fingerprint(refreshOpaque),
		SessionID:   sessionID,
		DID:         req.DID,
		Role:        role,
		ExpiresAt:   now.Add(s.refreshTTL()),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		CreatedAt:   now,
	}

	return domain.SessionTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		ExpiresIn:    s.accessTTL(),
		SessionID:    sessionID,
	}, row, nil
}

// CreateSession starts a new session for an already authenticated address.
func (s *SessionIssuer) CreateSession(ctx context.Context, req SessionRequest) (domain.SessionTokens, error) {
	ctx, cancel := withTimeout(ctx, s.OpTimeout)
	defer cancel()

	address, err := ethx.NormalizeAddress(req.Address)
	if err != nil {
		return domain.SessionTokens{}, ErrInvalidAddress
	}
	req.Address = address

	tokens, row, err := s.mint(req, s.now())
	if err != nil {
		return domain.SessionTokens{}, sessionErr(err)
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, row); err != nil {
		slogx.FromContext(ctx).Error("failed to store refresh token", slog.Any("error", err))
		return domain.SessionTokens{}, sessionErr(storageErr(err))
	}

	s.emit(ctx, events.Event{
		Type:      events.TypeSessionCreated,
		Address:   address,
		SessionID: tokens.SessionID,
		TokenID:   row.ID,
		IPAddress: req.IPAddress,
	})
	return tokens, nil
}

// RotateSession exchanges a refresh token for a new token pair. The old
// token is revoked before the new one is written, so a failure part way
// leaves the caller logged out rather than holding two live tokens.
func (s *SessionIssuer) RotateSession(ctx context.Context, refreshToken string, meta ClientMeta) (domain.SessionTokens, error) {
	ctx, cancel := withTimeout(ctx, s.OpTimeout)
	defer cancel()

	l := slogx.FromContext(ctx)

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.SessionTokens{}, ErrInvalidRefreshToken
	}

	now := s.now()
	hash := s.fingerprint(refreshToken)

	old, err := s.Store.RefreshTokens().RevokeActiveRefreshToken(ctx, hash, now)
	if errors.Is(err, store.ErrNotFound) {
		s.detectReuse(ctx, hash, meta)
		return domain.SessionTokens{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return domain.SessionTokens{}, storageErr(err)
	}

	tokens, row, err := s.mint(SessionRequest{
		Address:   old.UserAddress,
		DID:       old.DID,
		Role:      old.Role,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		sessionID: old.SessionID,
	}, now)
	if err != nil {
		return domain.SessionTokens{}, sessionErr(err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, row); err != nil {
			return err
		}
		return tx.RefreshTokens().SetReplacedBy(ctx, old.ID, row.ID)
	})
	if err != nil {
		l.Error("refresh rotation failed after revoke",
			slog.String("session_id", old.SessionID),
			slog.Any("error", err))
		return domain.SessionTokens{}, sessionErr(storageErr(err))
	}

	l.Info("session rotated",
		slog.String("session_id", old.SessionID),
		slog.String("address", old.UserAddress))
	s.emit(ctx, events.Event{
		Type:      events.TypeSessionRotated,
		Address:   old.UserAddress,
		SessionID: old.SessionID,
		TokenID:   row.ID,
		IPAddress: meta.IPAddress,
	})
	return tokens, nil
}

// detectReuse flags presentation of a token that was already rotated away.
// The successor stays valid; this only logs and notifies.
func (s *SessionIssuer) detectReuse(ctx context.Context, hash string, meta ClientMeta) {
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil || rt.ReplacedBy == "" {
		return
	}

	slogx.FromContext(ctx).Warn("rotated refresh token presented again",
		slog.String("session_id", rt.SessionID),
		slog.String("address", rt.UserAddress),
		slog.String("ip", meta.IPAddress))
	s.emit(ctx, events.Event{
		Type:      events.TypeRefreshReused,
		Address:   rt.UserAddress,
		SessionID: rt.SessionID,
		TokenID:   rt.ID,
		IPAddress: meta.IPAddress,
	})
}

// RevokeToken revokes a single refresh token, reporting whether it was live.
// Unknown tokens are not an error so logout stays idempotent.
func (s *SessionIssuer) RevokeToken(ctx context.Context, refreshToken string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.OpTimeout)
	defer cancel()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return false, nil
	}

	hash := s.fingerprint(refreshToken)
	revoked, err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, hash, s.now())
	if err != nil {
		return false, storageErr(err)
	}
	if revoked {
		if rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash); err == nil {
			s.emit(ctx, events.Event{
				Type:      events.TypeSessionRevoked,
				Address:   rt.UserAddress,
				SessionID: rt.SessionID,
				TokenID:   rt.ID,
			})
		}
	}
	return revoked, nil
}

// RevokeAllForUser ends every session of an address.
func (s *SessionIssuer) RevokeAllForUser(ctx context.Context, address string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.OpTimeout)
	defer cancel()

	address, err := ethx.NormalizeAddress(address)
	if err != nil {
		return 0, ErrInvalidAddress
	}

	n, err := s.Store.RefreshTokens().RevokeAllForUser(ctx, address, s.now())
	if err != nil {
		return 0, storageErr(err)
	}

	slogx.FromContext(ctx).Info("revoked all sessions",
		slog.String("address", address),
		slog.Int64("count", n))
	s.emit(ctx, events.Event{
		Type:    events.TypeSessionRevokedAll,
		Address: address,
		Count:   n,
	})
	return n, nil
}

// VerifyAccessToken checks signature, issuer and expiry. It never touches
// the store.
func (s *SessionIssuer) VerifyAccessToken(ctx context.Context, token string) (*jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		slogx.FromContext(ctx).Debug("access token rejected", slog.Any("error", err))
		return nil, errors.Join(ErrInvalidAccessToken, err)
	}
	return claims, nil
}

func (s *SessionIssuer) emit(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		slogx.FromContext(ctx).Warn("failed to publish auth event",
			slog.String("type", e.Type),
			slog.Any("error", err))
	}
}
