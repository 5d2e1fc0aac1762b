package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/webauth/internal/webapp/metrics"
	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/internal/webapp/store"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/slogx"

	_ "github.com/aussiebroadwan/webauth/api/webapp" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	sessions     *session.Manager
	store        store.Store
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// SessionStore is pinged by /readyz when sessions live outside the
	// process.
	SessionStore Pinger
	Metrics      *metrics.Metrics
	Cookies      CookieOptions

	// PostLogoutRedirect is where the identity provider returns the browser
	// after sign out.
	PostLogoutRedirect string

	PrivilegeService *service.PrivilegeService
	SignInService    *service.SignInService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	sessions *session.Manager,
	st store.Store,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		sessions:     sessions,
		store:        st,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}
}

func (r *Router) ApplyRoutes() {
	if r.Metrics != nil {
		r.middlewares = append(r.middlewares, r.Metrics.Instrument)
	}
	r.middlewares = append(r.middlewares, slogx.HTTPMiddleware(r.logger))

	r.registerSession()
	r.registerAPI()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						WebAuth Reference Web Application
//	@version					0.1.0
//	@description				Signs users in with OpenID Connect, keeps their access tokens in a per-session credential cache,
//	@description				and keeps a cached privilege record in step with the session's authentication state.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/webauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	IdentityCookie
//	@in							cookie
//	@name						webauth_id
//	@description				ID token set by the sign in callback.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// withSession resolves the identity and the server-side session. Only
// routes that need them pay for a session store round trip.
func (r *Router) withSession(h http.Handler, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{
		httpx.IdentityMiddleware(r.verifier, r.Cookies.identityName()),
		r.sessions.Middleware,
	}, mws...)
	return httpx.Chain(h, chain...)
}

func (r *Router) registerSession() {
	status := &StatusHandler{PrivilegeService: r.PrivilegeService}
	signIn := &SignInHandler{
		PrivilegeService: r.PrivilegeService,
		SignInService:    r.SignInService,
		Sessions:         r.sessions,
		Cookies:          r.Cookies,
	}
	signOut := &SignOutHandler{
		PrivilegeService:   r.PrivilegeService,
		SignInService:      r.SignInService,
		Sessions:           r.sessions,
		Cookies:            r.Cookies,
		PostLogoutRedirect: r.PostLogoutRedirect,
	}

	r.Mux.Handle("GET /{$}", r.withSession(status,
		httpx.RateLimitByIP(httpx.PageLimit),
	))

	// Sign in endpoints hit the identity provider; keep them tight.
	r.Mux.Handle("GET /signin", r.withSession(http.HandlerFunc(signIn.HandleStart),
		httpx.RateLimitByIP(httpx.SignInLimit),
	))
	r.Mux.Handle("POST "+callbackPath, r.withSession(http.HandlerFunc(signIn.HandleCallback),
		httpx.RateLimitByIP(httpx.SignInLimit),
	))

	r.Mux.Handle("GET /signout", r.withSession(signOut, httpx.RateLimitByIP(httpx.PageLimit)))
	r.Mux.Handle("POST /signout", r.withSession(signOut, httpx.RateLimitByIP(httpx.PageLimit)))
}

func (r *Router) registerAPI() {
	reload := &PrivilegesHandler{PrivilegeService: r.PrivilegeService}
	profile := &ProfileHandler{PrivilegeService: r.PrivilegeService}

	r.Mux.Handle("POST /privileges/reload", r.withSession(reload,
		httpx.RequireSignedIn,
		httpx.RateLimitBySubject(httpx.APILimit),
	))
	r.Mux.Handle("GET /api/profile", r.withSession(profile,
		httpx.RequireSignedIn,
		httpx.RateLimitBySubject(httpx.APILimit),
	))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.SessionStore, r.keys))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
