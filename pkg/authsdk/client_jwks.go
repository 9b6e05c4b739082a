package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

// GetJWKS retrieves the JSON Web Key Set for access token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

// NewVerifier fetches the key set and returns a verifier resource services
// can use to check access tokens offline.
func (c *SDKClient) NewVerifier(ctx context.Context, issuer string) (*jwtx.Verifier, error) {
	jwks, err := c.GetJWKS(ctx)
	if err != nil {
		return nil, err
	}

	keys := jwtx.NewKeySet()
	if err := keys.ResetFromJWKS(jwtx.JWKS(*jwks)); err != nil {
		return nil, err
	}
	return jwtx.NewVerifier(keys, jwtx.VerifyOptions{Issuer: issuer}), nil
}
