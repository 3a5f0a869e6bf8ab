// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brightstay/brightstay-invites/internal/api"
	"github.com/brightstay/brightstay-invites/internal/cache"
	"github.com/brightstay/brightstay-invites/internal/cache/memory"
	"github.com/brightstay/brightstay-invites/internal/config"
	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/invites"
)

var (
	ErrMissingDep     = errors.New("missing required dependency")
	ErrInvalidTLSMode = errors.New("invalid tls.mode")
)

// Deps holds all server dependencies.
type Deps struct {
	// Required: the invitation engine.
	Invites *invites.Service

	// Required: identity and auth.
	PartyRepo   identity.PartyRepo
	SessionRepo identity.SessionRepo
	UserAuth    *identity.UserAuth

	// Optional: counter backend for rate limiting. A nil value gets an
	// in-process memory cache, which is fine for a single instance.
	Cache cache.CacheWithCounter

	// Version is reported by the health endpoint.
	Version string
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	logger         *slog.Logger
	deps           *Deps
	trustedProxies *TrustedProxies
	authHandler    *api.AuthHandler
	healthHandler  *api.HealthHandler
	inviteHandler  *api.InviteHandler
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	initializeDefaults(deps)

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		deps:           deps,
		trustedProxies: NewTrustedProxies(cfg.Server.TrustedProxies),
		authHandler:    api.NewAuthHandler(deps.PartyRepo, deps.SessionRepo, deps.UserAuth),
		healthHandler:  api.NewHealthHandler(deps.Version),
		inviteHandler:  api.NewInviteHandler(deps.Invites, GetUserFromContext),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wired router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_base_path", s.cfg.ExternalBasePath,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "static":
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)

	default:
		return fmt.Errorf("%w: %s", ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Invites == nil {
		return fmt.Errorf("%w: Invites", ErrMissingDep)
	}
	if deps.PartyRepo == nil {
		return fmt.Errorf("%w: PartyRepo", ErrMissingDep)
	}
	if deps.SessionRepo == nil {
		return fmt.Errorf("%w: SessionRepo", ErrMissingDep)
	}
	if deps.UserAuth == nil {
		return fmt.Errorf("%w: UserAuth", ErrMissingDep)
	}
	return nil
}

// initializeDefaults fills optional dependencies with in-process defaults.
func initializeDefaults(deps *Deps) {
	if deps.Cache == nil {
		deps.Cache = memory.New(0, 0)
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
}
