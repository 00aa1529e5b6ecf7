// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects storage, Redis, the auth
// service, handlers, and middleware, and decides which URL maps to which
// handler. It is the composition root; no other package constructs its own
// dependencies.
//
// DEPENDENCY INJECTION FLOW:
//
//	New(cfg) opens:        relational store (sqlite | postgres), Redis, mailer, OAuth providers
//	NewWithDeps(deps) builds:
//	  token.Issuer, auth.PasswordService          → service.AuthService
//	  session.Store, session.Governor             → session.Manager
//	  AuthService + Manager (+ StateService)      → handler.AuthHandler, handler.OAuthHandler
//
// Tests call NewWithDeps directly with an in-memory SQLite store and miniredis.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/maxed-cv/internal/auth"
	"github.com/sakif/maxed-cv/internal/config"
	"github.com/sakif/maxed-cv/internal/handler"
	"github.com/sakif/maxed-cv/internal/metrics"
	"github.com/sakif/maxed-cv/internal/middleware"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/notify"
	"github.com/sakif/maxed-cv/internal/repository"
	postgresRepo "github.com/sakif/maxed-cv/internal/repository/postgres"
	sqliteRepo "github.com/sakif/maxed-cv/internal/repository/sqlite"
	"github.com/sakif/maxed-cv/internal/service"
	"github.com/sakif/maxed-cv/internal/session"
	"github.com/sakif/maxed-cv/internal/token"
)

// Deps are the external resources the server runs on. New opens them from
// config; tests build them by hand.
type Deps struct {
	Store     repository.Store
	Redis     *redis.Client
	Mailer    notify.Mailer
	Providers []auth.Provider
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the Redis client and closes both on
// shutdown, after in-flight requests and queued emails have finished.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    repository.Store
	rdb      *redis.Client
	notifier *notify.Async
	registry *prometheus.Registry
}

// New opens every external resource named in cfg and wires the server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rdb, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTP.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		logger.Warn("SMTP not configured, emails will only be logged")
	}

	s, err := NewWithDeps(cfg, Deps{
		Store:     store,
		Redis:     rdb,
		Mailer:    mailer,
		Providers: buildProviders(ctx, cfg, logger),
	}, logger)
	if err != nil {
		store.Close()
		rdb.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDeps wires the server around already-open resources.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    deps.Store,
		rdb:      deps.Redis,
		notifier: notify.NewAsync(notify.NewEmailNotifier(deps.Mailer), m, logger),
		registry: registry,
	}

	if err := s.setupRoutes(m, deps.Providers); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /health                     → store + Redis probe
//	GET  /metrics                    → Prometheus
//	POST /auth/signup                → signup + auto-login      [signup limit]
//	POST /auth/login                 → login
//	POST /auth/logout                → logout
//	POST /auth/verify-email          → verify + auto-login
//	POST /auth/forgot-password       → reset email               [sensitive limit]
//	POST /auth/reset-password        → set new password
//	GET  /auth/me                    → current user              [session]
//	POST /auth/deactivate            → deactivate + logout       [session]
//	POST /auth/resend-verification   → new verification email    [session, sensitive limit]
//	GET  /auth/{provider}            → OAuth redirect
//	GET  /auth/{provider}/callback   → OAuth callback
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, RealIP: identify the request and the client
//  2. Logger, Metrics: observe everything below, including panics turned 500
//  3. Recoverer: catches panics and returns 500 instead of crashing
//     CORS: answers preflights for the frontend origin before routing
//  4. sessions.Load: attach the session (auth routes only)
//  5. general rate limit: keyed by that session's user, else by IP
func (s *Server) setupRoutes(m *metrics.Metrics, providers []auth.Provider) error {
	cfg := s.config

	states, err := auth.NewStateService(cfg.SessionSecret)
	if err != nil {
		return err
	}

	sessionStore := session.NewStore(s.rdb, cfg.Session.IdleTTL, cfg.Session.RememberTTL)
	governor := session.NewGovernor(s.rdb, cfg.Session.MaxSessions, longest(
		cfg.Session.IdleTTL, cfg.Session.RememberTTL, cfg.Session.AbsoluteTTL,
	), m, s.logger)
	sessions := session.NewManager(sessionStore, governor, session.ManagerConfig{
		Secure:      cfg.IsProduction(),
		AbsoluteTTL: cfg.Session.AbsoluteTTL,
	}, s.logger)

	authService := service.NewAuthService(
		s.store,
		token.NewIssuer(s.store, cfg.Tokens.VerificationTTL, cfg.Tokens.ResetTTL),
		auth.NewPasswordService(cfg.BcryptCost),
		governor,
		s.notifier,
		m,
		service.AuthConfig{
			FrontendURL:      cfg.FrontendURL,
			EnumerationDelay: cfg.EnumerationDelay,
		},
		s.logger,
	)

	authHandler := handler.NewAuthHandler(authService, sessions, s.logger)
	oauthHandler := handler.NewOAuthHandler(authService, sessions, states, providers,
		cfg.FrontendURL, cfg.IsProduction(), s.logger)

	limiter := func(name string, rl config.RateLimit) func(http.Handler) http.Handler {
		return middleware.NewRateLimiter(s.rdb, name, rl.Requests, rl.Window, m, s.logger).Handler
	}

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(m))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(corsHandler(cfg.FrontendURL))

	// === Operational Routes ===
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// === Auth Routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Use(sessions.Load)
		r.Use(limiter("general", cfg.RateLimit.General))

		r.With(limiter("signup", cfg.RateLimit.Signup)).Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Post("/verify-email", authHandler.HandleVerifyEmail)
		r.With(limiter("forgot_password", cfg.RateLimit.Sensitive)).Post("/forgot-password", authHandler.HandleForgotPassword)
		r.Post("/reset-password", authHandler.HandleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/me", authHandler.HandleMe)
			r.Post("/deactivate", authHandler.HandleDeactivate)
			r.With(limiter("resend_verification", cfg.RateLimit.Sensitive)).
				Post("/resend-verification", authHandler.HandleResendVerification)
		})

		r.Get("/{provider}", oauthHandler.HandleLogin)
		r.Get("/{provider}/callback", oauthHandler.HandleCallback)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Wait for queued emails
//  4. Close Redis and the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DB.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close drains pending notifications and releases Redis and the store.
func (s *Server) Close() error {
	s.notifier.Wait()
	return errors.Join(s.rdb.Close(), s.store.Close())
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		return postgresRepo.New(ctx, cfg.DB.URL)
	default:
		// Ensure the data directory exists (like `mkdir -p`).
		if dir := filepath.Dir(cfg.DB.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqliteRepo.New(cfg.DB.Path)
	}
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// buildProviders returns the providers with both a client id and secret.
// An OIDC provider whose discovery fails is skipped, not fatal.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) []auth.Provider {
	var providers []auth.Provider

	oidcProviders := []struct {
		name   model.Provider
		issuer string
		pc     config.ProviderConfig
	}{
		{model.ProviderGoogle, auth.GoogleIssuer, cfg.OAuth.Google},
		{model.ProviderLinkedIn, auth.LinkedInIssuer, cfg.OAuth.LinkedIn},
	}
	for _, o := range oidcProviders {
		if !o.pc.Enabled() {
			continue
		}
		p, err := auth.NewOIDCProvider(ctx, o.name, o.issuer, o.pc.ClientID, o.pc.ClientSecret, o.pc.CallbackURL)
		if err != nil {
			logger.Warn("oauth provider disabled",
				slog.String("provider", string(o.name)),
				slog.Any("error", err),
			)
			continue
		}
		providers = append(providers, p)
	}

	if gh := cfg.OAuth.GitHub; gh.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.CallbackURL))
	}

	for _, p := range providers {
		logger.Info("oauth provider enabled", slog.String("provider", string(p.Name())))
	}
	return providers
}

// corsHandler admits credentialed requests from the frontend origin only.
//
// WHY CREDENTIALS?
// The frontend is served from its own origin and authenticates with the
// session cookie, which the browser only sends cross-origin when the response
// allows credentials. That in turn forbids a wildcard origin.
func corsHandler(frontendURL string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{strings.TrimRight(frontendURL, "/")},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func longest(ds ...time.Duration) time.Duration {
	var out time.Duration
	for _, d := range ds {
		if d > out {
			out = d
		}
	}
	return out
}
