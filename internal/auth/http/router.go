package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/walletauth/api/auth" // Swagger docs
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/httpx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Pinger

	Auth *service.AuthenticationService

	// AdminToken enables the admin routes when non-empty. Leave it empty in
	// production.
	AdminToken string

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

func NewRouter(
	auth *service.AuthenticationService,
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Pinger,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Auth:         auth,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every route. Set AdminToken and TrustProxy first.
func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						Wallet Auth API
//	@version					1.0
//	@description				Sign-In with Ethereum challenge and session service.
//	@contact.name				Aussie Broadwan
//	@contact.url				https://github.com/aussiebroadwan/walletauth
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//	@host						localhost:8080
//	@BasePath					/
//	@schemes					http https
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	base := handlerBase{Auth: r.Auth, TrustProxy: r.TrustProxy}

	// Challenge issuance and login are the brute-force surface.
	r.Mux.Handle("POST /v1/auth/challenge",
		httpx.Chain(&ChallengeHandler{base},
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{base},
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{base},
			httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{base},
			httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
		),
	)

	// Bearer-authenticated routes
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(&LogoutAllHandler{base},
			httpx.AuthnMiddleware(r.Auth),
			httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(SessionHandler(),
			httpx.AuthnMiddleware(r.Auth),
			httpx.RateLimitByIP(httpx.PublicLimit, r.TrustProxy),
		),
	)
}

func (r *Router) registerAdmin() {
	if r.AdminToken == "" || !r.Auth.AdminEnabled {
		return
	}

	h := &RateLimitAdminHandler{Auth: r.Auth, Token: r.AdminToken}
	r.Mux.Handle("DELETE /v1/admin/rate-limits/{kind}/{identifier}",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit, r.TrustProxy),
		),
	)
}
