package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

// JWKSHandler publishes the access token verification keys. Unlike the
// auth routes the key set may be cached briefly.
//
//	@Summary		JSON Web Key Set
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"Key set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
