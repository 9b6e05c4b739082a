package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/httpx"
)

// RateLimitAdminHandler serves DELETE /v1/admin/rate-limits/{kind}/{identifier}.
// Only registered outside production.
type RateLimitAdminHandler struct {
	Auth  *service.AuthenticationService
	Token string
}

// ServeHTTP godoc
//
//	@Summary		Clear a rate limit
//	@Description	Clears the failure record for an address or IP. Only available outside production.
//	@Tags			admin
//	@Param			X-Admin-Token	header	string	true	"Admin token"
//	@Param			kind			path	string	true	"Identifier kind"	Enums(address, ip)
//	@Param			identifier		path	string	true	"Address or IP"
//	@Success		204				"Rate limit cleared"
//	@Failure		400				{object}	authsdk.ErrorResponse	"Unknown kind or empty identifier"
//	@Failure		403				{object}	authsdk.ErrorResponse	"Missing or wrong admin token"
//	@Router			/v1/admin/rate-limits/{kind}/{identifier} [delete].
func (h *RateLimitAdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(authsdk.AdminTokenHeader)
	if h.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		authsdk.ErrForbidden.WriteError(w)
		return
	}

	kind, err := domain.ParseIdentifierKind(r.PathValue("kind"))
	identifier := r.PathValue("identifier")
	if err != nil || identifier == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Auth.ClearRateLimit(r.Context(), identifier, kind); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
