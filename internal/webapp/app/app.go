package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	httpapi "github.com/aussiebroadwan/webauth/internal/webapp/http"
	"github.com/aussiebroadwan/webauth/internal/webapp/metrics"
	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/internal/webapp/store"
	"github.com/aussiebroadwan/webauth/internal/webapp/store/drivers/sqlite"
	"github.com/aussiebroadwan/webauth/pkg/credcache"
	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
	"github.com/aussiebroadwan/webauth/pkg/oidc"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
	"github.com/aussiebroadwan/webauth/pkg/webapi"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"

	serviceName = "webapp"
)

// Application encapsulates the web application with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db        store.Store
	sessions  session.Store
	keys      *jwtx.KeySet
	metadata  oidc.Metadata
	outbound  *http.Client
	tracer    *sdktrace.TracerProvider
	metrics   *metrics.Metrics
	credCache *credcache.Cache

	// Services
	privilegeService    *service.PrivilegeService
	signInService       *service.SignInService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates the application: it discovers the identity provider, loads
// its keys, opens the credential database and wires the HTTP surface.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: serviceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		outbound: &http.Client{Timeout: 10 * time.Second},
		metrics:  metrics.New(serviceName),
	}

	if cfg.TracingEnabled {
		app.tracer = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(app.tracer)
	}

	if err := app.initIdentityProvider(ctx); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessions(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		_ = app.sessions.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler is the application's root handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves until ctx is cancelled or the server fails, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	app.housekeepingService.Start()

	app.logger.Info("webapp starting", "port", app.cfg.Port, "version", BuildVersion)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.keys.RefreshLoop(slogx.WithContext(gctx, app.logger), app.outbound, app.metadata.JWKSURI, app.cfg.JWKSRefresh)
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested")
		return app.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down webapp...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			app.logger.Error("error stopping tracer", "error", err)
		}
	}
	if err := app.sessions.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("webapp stopped")
	return nil
}

// initIdentityProvider reads the provider metadata and its signing keys.
func (app *Application) initIdentityProvider(ctx context.Context) error {
	md, err := oidc.Discover(ctx, app.outbound, app.cfg.Authority)
	if err != nil {
		return fmt.Errorf("failed to discover identity provider: %w", err)
	}
	app.metadata = md

	app.keys = jwtx.NewKeySet()
	if err := app.keys.Refresh(ctx, app.outbound, md.JWKSURI); err != nil {
		return fmt.Errorf("failed to load identity provider keys: %w", err)
	}

	app.logger.Info("identity provider ready", "issuer", md.Issuer, "jwks_uri", md.JWKSURI)
	return nil
}

// initDatabase opens the credential database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSessions picks the redis session store when one is configured.
func (app *Application) initSessions(ctx context.Context) error {
	if app.cfg.RedisURL == "" {
		app.sessions = session.NewMemoryStore()
		app.logger.Warn("using in-memory sessions; sign-ins are lost on restart")
		return nil
	}

	opts, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rs := session.NewRedisStore(redis.NewClient(opts), serviceName+":session:")
	if err := rs.Ping(ctx); err != nil {
		_ = rs.Close()
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	app.sessions = rs

	app.logger.Info("redis session store connected", "addr", opts.Addr, "db", opts.DB)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	secret, ephemeral, err := cryptox.LoadSecret(app.cfg.SecretFile, app.cfg.Secret)
	if err != nil {
		return fmt.Errorf("failed to load secret: %w", err)
	}
	if ephemeral {
		app.logger.Warn("no secret configured; cached credentials will not survive a restart")
	}

	credSealer, err := cryptox.NewSealer(secret, "credentials")
	if err != nil {
		return err
	}
	corrSealer, err := cryptox.NewSealer(secret, "correlation")
	if err != nil {
		return err
	}

	app.credCache = credcache.New(app.db.Credentials(), credSealer)

	clientOpts := []webapi.Option{webapi.WithMetrics(app.metrics)}
	if app.tracer != nil {
		clientOpts = append(clientOpts, webapi.WithTracerProvider(app.tracer))
	}

	app.privilegeService = &service.PrivilegeService{
		APIRoot:       app.cfg.APIRoot,
		Scopes:        app.cfg.APIScopes,
		Credentials:   app.credCache,
		TTL:           app.cfg.PrivilegeTTL,
		Recorder:      app.metrics,
		ClientOptions: clientOpts,
	}

	app.signInService = &service.SignInService{
		OIDC: &oidc.Client{
			Metadata:     app.metadata,
			ClientID:     app.cfg.ClientID,
			ClientSecret: app.cfg.ClientSecret,
			RedirectURL:  app.cfg.RedirectURL,
			Scopes:       app.cfg.APIScopes,
			HTTPClient:   app.outbound,
		},
		Verifier:    app.verifier(),
		Credentials: app.credCache,
		Sealer:      corrSealer,
		Recorder:    app.metrics,
	}

	tasks := map[string]service.Sweeper{
		"credentials": service.SweepFunc(app.credCache.Purge),
	}
	if mem, ok := app.sessions.(*session.MemoryStore); ok {
		tasks["sessions"] = mem
	}
	app.housekeepingService = service.NewHousekeepingService(tasks, app.logger, app.cfg.HousekeepingInterval)
	app.housekeepingService.OnSwept = func(task string, n int64) {
		if task == "credentials" {
			app.metrics.CredentialsPurged(n)
		}
	}
	return nil
}

// verifier checks ID tokens against the provider's keys. Multi-tenant
// metadata advertises a templated issuer, so only the audience is pinned
// then and the tenant comes from the token's own issuer.
func (app *Application) verifier() jwtx.Verifier {
	opts := jwtx.VerifyOptions{
		Audience: []string{app.cfg.ClientID},
		Leeway:   time.Minute,
	}
	if !strings.Contains(app.metadata.Issuer, "{") {
		opts.Issuer = app.metadata.Issuer
	}
	return jwtx.NewVerifier(app.keys, opts)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	mgr := session.NewManager(app.sessions, session.Options{
		Secure: app.cfg.CookieSecure,
		TTL:    app.cfg.SessionTTL,
	})

	router := httpapi.NewRouter(
		app.keys,
		app.signInService.Verifier,
		mgr,
		app.db,
		BuildVersion,
		app.logger,
	)

	if p, ok := app.sessions.(httpapi.Pinger); ok {
		router.SessionStore = p
	}
	router.Metrics = app.metrics
	router.Cookies = httpapi.CookieOptions{Secure: app.cfg.CookieSecure}
	router.PostLogoutRedirect = app.cfg.PostLogoutRedirect
	router.PrivilegeService = app.privilegeService
	router.SignInService = app.signInService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
