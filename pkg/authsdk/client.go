package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdminTokenHeader carries the admin token on administrative requests.
const AdminTokenHeader = "X-Admin-Token"

// SignFunc signs a SIWE message with the wallet and returns the 65-byte
// signature as 0x-prefixed hex.
type SignFunc func(message string) (string, error)

// SDKClient is a client for the wallet authentication service.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// AdminToken is sent with administrative requests. Only non-production
	// deployments accept it.
	AdminToken string
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestChallenge asks the service for a sign-in message for address.
func (c *SDKClient) RequestChallenge(ctx context.Context, req ChallengeRequest) (*ChallengeResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/challenge", req, nil)
	if err != nil {
		return nil, err
	}

	var challenge ChallengeResponse
	if err := decodeJSON(resp, &challenge, http.StatusCreated); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Login exchanges a signed challenge message for a token pair.
func (c *SDKClient) Login(ctx context.Context, message, signature string) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/login", LoginRequest{
		Message:   message,
		Signature: signature,
	}, nil)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// SignIn runs the whole challenge flow for address and returns a session.
func (c *SDKClient) SignIn(ctx context.Context, address string, chainID int64, sign SignFunc) (*Session, error) {
	challenge, err := c.RequestChallenge(ctx, ChallengeRequest{Address: address, ChainID: chainID})
	if err != nil {
		return nil, err
	}

	signature, err := sign(challenge.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	tokens, err := c.Login(ctx, challenge.Message, signature)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// Refresh rotates refreshToken. The presented token is dead afterwards
// whether or not the call succeeds.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout revokes refreshToken. Unknown tokens are not an error.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.postJSON(ctx, "/v1/auth/logout", LogoutRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ClearRateLimit resets the attempt counter for one identifier. kind is
// "address" or "ip".
func (c *SDKClient) ClearRateLimit(ctx context.Context, kind, identifier string) error {
	path := "/v1/admin/rate-limits/" + url.PathEscape(kind) + "/" + url.PathEscape(identifier)
	resp, err := c.doRequest(ctx, http.MethodDelete, path, nil, map[string]string{
		AdminTokenHeader: c.AdminToken,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// AuthenticateWithRefreshToken creates an authenticated session from an existing refresh token.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	tokens, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens creates an authenticated session from existing tokens.
// The session will still perform auto-refresh when the access token expires.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}
