package auth

import (
	"github.com/chatdeck/chatdeck/internal/auth/handlers"
	"github.com/chatdeck/chatdeck/internal/auth/middleware"
	"github.com/chatdeck/chatdeck/internal/auth/providers"
	"github.com/chatdeck/chatdeck/internal/auth/session"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"net/http"
)

// Service represents the OAuth service: the configured providers, the cookie
// session manager and the redirect endpoints built on top of them.
type Service struct {
	registry *providers.Registry
	sessions *session.Manager
	handler  *handlers.Handler
}

// NewService creates a new OAuth service
func NewService(cfg *config.Config, registry *providers.Registry, sessions *session.Manager) *Service {
	return &Service{
		registry: registry,
		sessions: sessions,
		handler:  handlers.NewHandler(registry, sessions, cfg.Server.DashboardURL),
	}
}

// RegisterRoutes registers all OAuth-related routes
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/auth/{provider}/login", s.handler.HandleLogin)
	r.Get("/auth/{provider}/callback", s.handler.HandleCallback)
	r.Post("/auth/{provider}/logout", s.handler.HandleLogout)
}

// RequireCredential returns the credential-resolution middleware for
// provider API routes.
func (s *Service) RequireCredential() func(http.Handler) http.Handler {
	return middleware.RequireCredential(s.sessions, s.registry)
}

// Registry returns the configured provider registry
func (s *Service) Registry() *providers.Registry {
	return s.registry
}

// Sessions returns the cookie session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Module provides the auth service dependencies
var Module = fx.Module("auth",
	fx.Provide(
		providers.NewRegistry,
		session.NewManager,
		NewService,
	),
)
