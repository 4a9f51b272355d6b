// Package server wires the application together: it builds the database,
// services, and handlers, mounts the routes, and runs the HTTP server
// with graceful shutdown. It is the composition root; nothing outside
// this package (and main) constructs concrete dependencies.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/identity-service/internal/auth"
	"github.com/sakif/identity-service/internal/config"
	"github.com/sakif/identity-service/internal/handler"
	"github.com/sakif/identity-service/internal/middleware"
	"github.com/sakif/identity-service/internal/model"
	sqliteRepo "github.com/sakif/identity-service/internal/repository/sqlite"
	"github.com/sakif/identity-service/internal/service"
)

// Server holds the router and the resources it owns. The database
// connection belongs to the server and is closed on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain:
//
//	sqlite.DB → IdentityService / AccountService → handlers → routes
//
// Each layer receives only the interfaces it needs; handlers never touch
// the database and services never touch HTTP.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath, auth.NewPasswordService())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// providerAdapters builds one OAuth transport adapter per provider that
// has credentials configured. Disabled providers are simply absent from
// the map; their routes answer with a validation error.
func (s *Server) providerAdapters() map[string]*auth.Provider {
	adapters := make(map[string]*auth.Provider)
	if s.config.GitHub.Enabled() {
		adapters[model.ProviderGitHub] = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.CallbackURL(model.ProviderGitHub),
		)
	}
	if s.config.Google.Enabled() {
		adapters[model.ProviderGoogle] = auth.NewGoogleProvider(
			s.config.Google.ClientID,
			s.config.Google.ClientSecret,
			s.config.CallbackURL(model.ProviderGoogle),
		)
	}
	if s.config.Twitter.Enabled() {
		adapters[model.ProviderTwitter] = auth.NewTwitterProvider(
			s.config.Twitter.ClientID,
			s.config.Twitter.ClientSecret,
			s.config.CallbackURL(model.ProviderTwitter),
		)
	}
	return adapters
}

// providerConfigs mirrors the adapter map for the service layer, which
// only needs to know which providers are enabled.
func (s *Server) providerConfigs() map[string]service.ProviderConfig {
	configs := make(map[string]service.ProviderConfig)
	for name, p := range map[string]config.OAuthProvider{
		model.ProviderGitHub:  s.config.GitHub,
		model.ProviderGoogle:  s.config.Google,
		model.ProviderTwitter: s.config.Twitter,
	} {
		if p.Enabled() {
			configs[name] = service.ProviderConfig{
				Enabled:      true,
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
			}
		}
	}
	return configs
}

func (s *Server) setupRoutes() error {
	// Middleware executes in registration order: request id and real IP
	// first, then panic recovery, then request logging.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	identityService := service.NewIdentityService(s.db, s.providerConfigs(), s.logger)
	accountService := service.NewAccountService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(s.providerAdapters(), identityService, s.db, tokens, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, s.db, s.logger)
	userHandler := handler.NewUserHandler(accountService, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)

		// The provider routes run behind OptionalAuth: with no session
		// they sign in, with one they link the identity to the account.
		r.Group(func(r chi.Router) {
			r.Use(tokens.OptionalAuth)
			r.Get("/{provider}", authHandler.HandleProviderLogin)
			r.Get("/{provider}/callback", authHandler.HandleProviderCallback)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		// Public directory.
		r.Get("/users", userHandler.HandleListUsers)
		r.Get("/users/{id}", userHandler.HandleGetUser)

		// Self-service account routes require a session.
		r.Group(func(r chi.Router) {
			r.Use(tokens.RequireAuth)
			r.Get("/account", authHandler.HandleMe)
			r.Put("/account/profile", accountHandler.HandleUpdateProfile)
			r.Put("/account/password", accountHandler.HandleChangePassword)
			r.Delete("/account", accountHandler.HandleDeleteAccount)
			r.Delete("/account/links/{provider}", accountHandler.HandleUnlink)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests for
// up to 30 seconds, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
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
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
