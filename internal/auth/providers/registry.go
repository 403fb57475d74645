package providers

import (
	"fmt"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/chatdeck/chatdeck/internal/logger"
	"go.uber.org/zap"
)

// Registry holds the configured providers keyed by name. Providers without a
// config section are absent; looking them up yields MissingConfiguration.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry wires up every provider that has configuration present,
// logging secret presence indicators at startup.
func NewRegistry(cfg *config.Config, fwd *forwarder.Forwarder) *Registry {
	r := &Registry{providers: make(map[string]Provider)}

	if cfg.Trello != nil {
		r.providers["trello"] = NewTrelloProvider(cfg.Trello, fwd)
	}
	if cfg.Mattermost != nil {
		r.providers["mattermost"] = NewMattermostProvider(cfg.Mattermost, fwd)
	}
	if cfg.Flock != nil {
		r.providers["flock"] = NewFlockProvider(cfg.Flock, fwd)
	}

	for name := range r.providers {
		pc := cfg.Provider(name)
		logger.Info("provider configured",
			zap.String("provider", name),
			zap.String("client_id", config.MaskSecret(pc.ClientID)),
			zap.String("client_secret", config.MaskSecret(pc.ClientSecret)),
			zap.String("redirect_uri", pc.RedirectURI),
		)
	}

	return r
}

// Get returns the provider for a name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, apperr.ErrMissingConfiguration)
	}
	return p, nil
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
