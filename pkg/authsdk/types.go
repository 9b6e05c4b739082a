package authsdk

import (
	"time"

	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
// Client code should use the APIError type from errors.go instead.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Challenge Types
// ============================================================================

// ChallengeRequest is the body of POST /v1/auth/challenge.
type ChallengeRequest struct {
	// Address is the wallet address, any case.
	Address string `json:"address"`

	// ChainID defaults to 1 (Ethereum mainnet) when omitted.
	ChainID int64 `json:"chainId,omitempty"`

	// Statement overrides the human readable line in the message.
	Statement string `json:"statement,omitempty"`
}

// ChallengeResponse carries the exact message the wallet must sign. The
// nonce only travels inside the message.
type ChallengeResponse struct {
	ChallengeID string    `json:"challengeId"`
	Message     string    `json:"message"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expiresIn"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest is the body of POST /v1/auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutAllResponse reports how many refresh tokens were revoked.
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// SessionInfoResponse describes the access token presented to
// GET /v1/auth/session.
type SessionInfoResponse struct {
	Address   string    `json:"address"`
	DID       string    `json:"did"`
	Role      string    `json:"role,omitempty"`
	SessionID string    `json:"sessionId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status ("ok" or "degraded")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains the status of each dependency (readyz only)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
// This is returned from the GET /.well-known/jwks.json endpoint and contains
// public keys used to verify access token signatures.
type JWKSResponse jwtx.JWKS
