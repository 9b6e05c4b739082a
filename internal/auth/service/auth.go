package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

// AuthenticationService is the entry point the transport layer talks to.
// Challenges and Sessions must share one Store so login can consume the
// challenge and persist the session in a single transaction.
type AuthenticationService struct {
	Challenges *ChallengeManager
	Sessions   *SessionIssuer
	Limiter    ratelimit.Limiter

	// AdminEnabled exposes ClearRateLimit. Never set in production.
	AdminEnabled bool
}

type LoginRequest struct {
	Message   string
	Signature string
	IPAddress string
	UserAgent string
	Role      string
}

// Login verifies a signed challenge and starts a session. The challenge is
// only consumed if the session is stored too, so a failed login can be
// retried with the same signature.
func (s *AuthenticationService) Login(ctx context.Context, req LoginRequest) (domain.SessionTokens, error) {
	ctx, cancel := withTimeout(ctx, s.Sessions.OpTimeout)
	defer cancel()

	l := slogx.FromContext(ctx)

	pending, err := s.Challenges.Verify(ctx, VerifyRequest{
		Message:   req.Message,
		Signature: req.Signature,
		IPAddress: req.IPAddress,
	})
	if err != nil {
		return domain.SessionTokens{}, err
	}

	tokens, row, err := s.Sessions.mint(SessionRequest{
		Address:   pending.Address(),
		DID:       pending.DID,
		Role:      req.Role,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}, s.Sessions.now())
	if err != nil {
		l.Error("failed to mint session", slog.Any("error", err))
		return domain.SessionTokens{}, sessionErr(err)
	}

	err = s.Sessions.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := pending.commitWith(ctx, tx.Challenges()); err != nil {
			return err
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, row); err != nil {
			return sessionErr(storageErr(err))
		}
		return nil
	})
	if err != nil {
		if !isTaxonomy(err) {
			// Commit itself failed; nothing was consumed.
			err = sessionErr(storageErr(err))
		}
		l.Warn("login failed", slog.String("address", pending.Address()), slog.Any("error", err))
		return domain.SessionTokens{}, err
	}

	l.Info("login succeeded",
		slog.String("address", pending.Address()),
		slog.String("session_id", tokens.SessionID))
	s.Sessions.emit(ctx, events.Event{
		Type:      events.TypeSessionCreated,
		Address:   pending.Address(),
		SessionID: tokens.SessionID,
		TokenID:   row.ID,
		IPAddress: req.IPAddress,
	})
	return tokens, nil
}

func (s *AuthenticationService) IssueChallenge(ctx context.Context, req IssueRequest) (domain.Challenge, error) {
	return s.Challenges.IssueChallenge(ctx, req)
}

func (s *AuthenticationService) VerifyChallenge(ctx context.Context, req VerifyRequest, markUsed bool) (VerifyResult, error) {
	return s.Challenges.VerifyChallenge(ctx, req, markUsed)
}

func (s *AuthenticationService) MarkChallengeUsed(ctx context.Context, id string) error {
	return s.Challenges.MarkChallengeUsed(ctx, id)
}

func (s *AuthenticationService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (domain.SessionTokens, error) {
	return s.Sessions.RotateSession(ctx, refreshToken, meta)
}

func (s *AuthenticationService) Logout(ctx context.Context, refreshToken string) (bool, error) {
	return s.Sessions.RevokeToken(ctx, refreshToken)
}

func (s *AuthenticationService) LogoutAll(ctx context.Context, address string) (int64, error) {
	return s.Sessions.RevokeAllForUser(ctx, address)
}

// VerifyAccessToken satisfies httpx.AccessTokenVerifier.
func (s *AuthenticationService) VerifyAccessToken(ctx context.Context, token string) (*jwtx.Claims, error) {
	return s.Sessions.VerifyAccessToken(ctx, token)
}

// ClearRateLimit forgets the attempts recorded for one identifier.
func (s *AuthenticationService) ClearRateLimit(ctx context.Context, identifier string, kind domain.IdentifierKind) error {
	if !s.AdminEnabled || s.Limiter == nil {
		return ErrAdminDisabled
	}

	if kind == domain.KindAddress {
		address, err := ethx.NormalizeAddress(identifier)
		if err != nil {
			return ErrInvalidAddress
		}
		identifier = address
	}

	if err := s.Limiter.Clear(ctx, identifier, kind); err != nil {
		if errors.Is(err, store.ErrAdminDisabled) {
			return ErrAdminDisabled
		}
		return storageErr(err)
	}

	slogx.FromContext(ctx).Warn("rate limit cleared",
		slog.String("kind", string(kind)),
		slog.String("identifier", identifier))
	return nil
}
