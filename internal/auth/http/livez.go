package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/walletauth/pkg/authsdk"
	"github.com/aussiebroadwan/walletauth/pkg/httpx"
)

// LivezHandler always answers 200 while the process is running.
//
//	@Summary		Liveness check
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"Service is alive"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}
