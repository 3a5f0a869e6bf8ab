package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightstay/brightstay-invites/internal/ratelimit"
)

// publicRoute describes an endpoint that bypasses session auth.
// A trailing "*" segment in Pattern matches exactly one path segment.
type publicRoute struct {
	Method  string
	Pattern string
}

// publicRoutes is the single source of truth for auth gating. Everything
// else under /api requires a session. Invitation inspection is public so a
// landing page can render before the invitee logs in; claiming is not.
var publicRoutes = []publicRoute{
	{http.MethodGet, "/api/healthz"},
	{http.MethodPost, "/api/auth/login"},
	{http.MethodGet, "/api/invites/*"},
}

// IsAuthRequired reports whether a request path requires a session.
// basePath is the configured external base path, possibly empty.
func IsAuthRequired(method, path, basePath string) bool {
	if basePath != "" {
		trimmed := strings.TrimPrefix(path, basePath)
		if trimmed == path {
			// Outside the mount point; nothing to protect.
			return false
		}
		path = trimmed
	}

	for _, pr := range publicRoutes {
		if pr.Method == method && patternMatches(pr.Pattern, path) {
			return false
		}
	}
	return true
}

// patternMatches matches path against pattern, where a trailing "*"
// matches a single non-empty segment.
func patternMatches(pattern, path string) bool {
	if !strings.HasSuffix(pattern, "/*") {
		return pattern == path
	}

	prefix := strings.TrimSuffix(pattern, "*")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest != "" && !strings.Contains(rest, "/")
}

// setupRoutes creates the chi router with the full middleware stack.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so the access log can include it.
	// The access log wraps the response writer, and Recoverer writes
	// through that wrapper, so panics are logged with the right status.
	r.Use(middleware.RequestID)
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	if s.cfg.ExternalBasePath != "" {
		r.Route(s.cfg.ExternalBasePath, func(r chi.Router) {
			s.mountAPI(r)
		})
	} else {
		s.mountAPI(r)
	}

	return r
}

// mountAPI mounts the API endpoints, possibly under the base path.
func (s *Server) mountAPI(r chi.Router) {
	keyFn := ratelimit.KeyFunc(s.trustedProxies.ClientIPString)

	inspectLimit := s.limitMiddleware("inspect", s.cfg.RateLimit.InspectPerMinute, keyFn)
	claimLimit := s.limitMiddleware("claim", s.cfg.RateLimit.ClaimPerMinute, keyFn)
	loginLimit := s.limitMiddleware("login", s.cfg.RateLimit.LoginPerMinute, keyFn)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.healthHandler.Healthz)

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", s.authHandler.Login)
			r.Post("/logout", s.authHandler.Logout)
			r.Get("/me", s.authHandler.GetCurrentUser)
		})

		// The {invite} segment is a token for public inspection and
		// claiming, and an invitation id for revocation.
		r.Route("/invites", func(r chi.Router) {
			r.Post("/", s.inviteHandler.Issue)
			r.Get("/", s.inviteHandler.List)
			r.With(inspectLimit).Get("/{invite}", s.inviteHandler.Inspect)
			r.With(claimLimit).Post("/{invite}/claim", s.inviteHandler.Claim)
			r.Post("/{invite}/revoke", s.inviteHandler.Revoke)
		})

		r.Get("/grants", s.inviteHandler.ListGrants)
	})
}

// limitMiddleware builds a per-client-IP fixed-window limiter for one
// endpoint. A zero limit disables limiting for that endpoint.
func (s *Server) limitMiddleware(name string, perMinute int64, keyFn ratelimit.KeyFunc) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := ratelimit.New(s.deps.Cache, &ratelimit.Config{
		RequestsPerWindow: perMinute,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:" + name + ":",
	})
	return limiter.Middleware(keyFn)
}
