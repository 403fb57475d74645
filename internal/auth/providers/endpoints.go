package providers

import (
	"strings"

	"github.com/chatdeck/chatdeck/internal/config"
)

// RESTBaseURL returns the REST API base the proxy targets for a provider.
// Returns "" when the provider is unknown or, for Mattermost, when no base
// URL is configured (Mattermost is self-hosted and has no default).
func RESTBaseURL(name string, cfg *config.ProviderConfig) string {
	base := ""
	if cfg != nil {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}

	switch name {
	case "mattermost":
		if base == "" {
			return ""
		}
		return base + "/api/v4"
	case "trello":
		if base == "" {
			return trelloAPIBaseURL
		}
		return base
	case "flock":
		if base == "" {
			return flockDefaultBaseURL
		}
		return base
	}
	return ""
}
