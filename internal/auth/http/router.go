package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store     store.Store
	services  *service.Services
	telemetry *telemetry.Telemetry

	// ResourceAudience is the aud the sample resource server accepts.
	// Empty skips the audience check.
	ResourceAudience []string

	// Redis is checked by /readyz when codes live in Redis.
	Redis Pinger
}

func NewRouter(
	keys *jwtx.KeyManager,
	issuer, buildVersion string,
	st store.Store,
	svc *service.Services,
	tel *telemetry.Telemetry,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		services:     svc,
		telemetry:    tel,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerDiscovery()
	r.registerResources()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.services.Authorize}

	r.Mux.Handle("GET /connect/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Credentials are posted here, so limit per IP and username.
	r.Mux.Handle("POST /connect/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	tokenHandler := &TokenHandler{Dispatcher: r.services.Dispatcher}
	r.Mux.Handle("POST /connect/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndClient(httpx.StrictLimit),
		),
	)

	revokeHandler := &RevokeHandler{Revocation: r.services.Revocation}
	r.Mux.Handle("POST /connect/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	userInfo := httpx.Chain(&UserInfoHandler{UserInfo: r.services.UserInfo},
		httpx.AuthnMiddleware(r.keys.Verifier),
		httpx.RequireScopes("openid"),
	)
	r.Mux.Handle("GET /connect/userinfo", userInfo)
	r.Mux.Handle("POST /connect/userinfo", userInfo)
}

func (r *Router) registerDiscovery() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer, r.keys.Algorithm(), r.services.Scopes),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

// registerResources mounts the sample resource server. It verifies tokens
// against the same key set but only accepts its own audience.
func (r *Router) registerResources() {
	verifier := jwtx.NewVerifier(r.keys.KeySet, jwtx.VerifyOptions{
		Issuer:     r.issuer,
		Audience:   r.ResourceAudience,
		Algorithms: []string{r.keys.Algorithm()},
	})

	r.Mux.Handle("GET /api/weatherforecast",
		httpx.Chain(http.HandlerFunc(WeatherForecastHandler),
			httpx.AuthnMiddleware(verifier),
			httpx.RequireScopes("API"),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys.KeySet, r.Redis),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /metrics", r.telemetry.Handler())
}
