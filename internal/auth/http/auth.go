package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/httpx"
)

type handlerBase struct {
	Auth       *service.AuthenticationService
	TrustProxy bool
}

func (h handlerBase) meta(r *http.Request) service.ClientMeta {
	return service.ClientMeta{
		IPAddress: httpx.ClientIP(r, h.TrustProxy),
		UserAgent: r.UserAgent(),
	}
}

func tokenResponse(t domain.SessionTokens) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int(t.ExpiresIn / time.Second),
		TokenType:    "Bearer",
	}
}

// ChallengeHandler serves POST /v1/auth/challenge.
type ChallengeHandler struct{ handlerBase }

// ServeHTTP godoc
//
//	@Summary		Issue a sign-in challenge
//	@Description	Issues a single-use SIWE message for the wallet to sign.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ChallengeRequest	true	"Wallet address and optional chain"
//	@Success		201		{object}	authsdk.ChallengeResponse	"Challenge issued"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Malformed address or body"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Too many attempts"
//	@Router			/v1/auth/challenge [post].
func (h *ChallengeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChallengeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	meta := h.meta(r)
	c, err := h.Auth.IssueChallenge(r.Context(), service.IssueRequest{
		Address:   req.Address,
		ChainID:   req.ChainID,
		Statement: req.Statement,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.ChallengeResponse{
		ChallengeID: c.ID,
		Message:     c.Message,
		ExpiresAt:   c.ExpiresAt,
	})
}

// LoginHandler serves POST /v1/auth/login. A session_creation_failed
// response leaves the challenge usable, so clients may resubmit the same
// signature.
type LoginHandler struct{ handlerBase }

// ServeHTTP godoc
//
//	@Summary		Log in with a signed challenge
//	@Description	Verifies a signed challenge and opens a session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Signed challenge message"
//	@Success		200		{object}	authsdk.TokenResponse	"Session tokens"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed message or signature"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Signature, expiry or replay rejection"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Too many failed attempts"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Session could not be created"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Message == "" || req.Signature == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	meta := h.meta(r)
	tokens, err := h.Auth.Login(r.Context(), service.LoginRequest{
		Message:   req.Message,
		Signature: req.Signature,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tokens))
}

// RefreshHandler serves POST /v1/auth/refresh.
type RefreshHandler struct{ handlerBase }

// ServeHTTP godoc
//
//	@Summary		Refresh a session
//	@Description	Rotates a refresh token. A rotated token cannot be used again.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Current refresh token"
//	@Success		200		{object}	authsdk.TokenResponse	"New session tokens"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing refresh token"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Unknown, expired or reused token"
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	tokens, err := h.Auth.Refresh(r.Context(), req.RefreshToken, h.meta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(tokens))
}

// LogoutHandler serves POST /v1/auth/logout. Unknown or already revoked
// tokens still get 204 so the endpoint does not reveal which tokens exist.
type LogoutHandler struct{ handlerBase }

// ServeHTTP godoc
//
//	@Summary		Log out
//	@Description	Revokes one refresh token. Unknown tokens also return 204.
//	@Tags			auth
//	@Accept			json
//	@Param			request	body	authsdk.LogoutRequest	true	"Refresh token to revoke"
//	@Success		204		"Token revoked"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Missing refresh token"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if _, err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAllHandler serves POST /v1/auth/logout-all for the wallet in the
// bearer token.
type LogoutAllHandler struct{ handlerBase }

// ServeHTTP godoc
//
//	@Summary		Log out everywhere
//	@Description	Revokes every refresh token held by the authenticated wallet.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.LogoutAllResponse	"Number of tokens revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Missing or invalid access token"
//	@Router			/v1/auth/logout-all [post].
func (h *LogoutAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.Auth.LogoutAll(ctx, httpx.SubjectFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{Revoked: n})
}

// SessionHandler serves GET /v1/auth/session from the verified claims.
//
//	@Summary		Current session
//	@Description	Describes the session behind the presented access token.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.SessionInfoResponse	"Session details"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Missing or invalid access token"
//	@Router			/v1/auth/session [get].
func SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		if !ok {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}

		info := authsdk.SessionInfoResponse{
			Address:   claims.Subject,
			DID:       claims.DID,
			Role:      claims.Role,
			SessionID: claims.SID,
		}
		if claims.IssuedAt != nil {
			info.IssuedAt = claims.IssuedAt.Time.UTC()
		}
		if claims.ExpiresAt != nil {
			info.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
		httpx.WriteJSON(w, http.StatusOK, info)
	}
}
