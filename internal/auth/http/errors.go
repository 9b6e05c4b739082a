package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

// apiError maps a service error to its response. The description is always
// the public message, never err's own text.
func apiError(err error) *authsdk.APIError {
	var base *authsdk.APIError
	switch {
	case errors.Is(err, service.ErrRateLimited):
		base = authsdk.ErrRateLimited
		var rl *service.RateLimitError
		if errors.As(err, &rl) {
			base = base.WithRetryAfter(rl.RetryAfter)
		}
	case service.IsVerificationFailure(err):
		base = authsdk.ErrVerificationFailed
	case errors.Is(err, service.ErrInvalidRefreshToken):
		base = authsdk.ErrInvalidRefreshToken
	case errors.Is(err, service.ErrInvalidAccessToken):
		base = authsdk.ErrInvalidToken
	case errors.Is(err, service.ErrSessionCreationFailed):
		base = authsdk.ErrSessionCreationFailed
	case errors.Is(err, service.ErrStorageUnavailable):
		base = authsdk.ErrServiceUnavailable
	case errors.Is(err, service.ErrInvalidAddress):
		base = authsdk.ErrInvalidAddress
	case errors.Is(err, service.ErrInvalidRequest):
		base = authsdk.ErrInvalidRequest
	case errors.Is(err, service.ErrAdminDisabled):
		base = authsdk.ErrNotFound
	default:
		base = authsdk.ErrServerError
	}

	out := *base
	out.Description = service.PublicMessage(err)
	return &out
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := apiError(err)

	l := slogx.FromContext(r.Context())
	if resp.StatusCode >= http.StatusInternalServerError {
		l.Error("request failed", slog.String("code", resp.Code), slog.Any("error", err))
	} else {
		l.Debug("request rejected", slog.String("code", resp.Code), slog.Any("error", err))
	}

	resp.WriteError(w)
}
