package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"golang.org/x/oauth2"
)

// NewMattermostProvider creates the OAuth2 client for a Mattermost server.
// Mattermost is self-hosted, so every endpoint derives from the configured
// base URL.
func NewMattermostProvider(cfg *config.ProviderConfig, fwd *forwarder.Forwarder) *MattermostProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")

	return &MattermostProvider{oauth2Provider{
		name: "mattermost",
		cfg:  cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth/authorize",
				TokenURL: base + "/oauth/access_token",
			},
		},
		identityURL:   base + "/api/v4/users/me",
		parseIdentity: parseMattermostIdentity,
		fwd:           fwd,
	}}
}

type MattermostProvider struct {
	oauth2Provider
}

func parseMattermostIdentity(body []byte) (*models.Identity, error) {
	var user struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode users/me response: %w", err)
	}

	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	return &models.Identity{
		ID:       user.ID,
		Username: user.Username,
		Name:     name,
		Email:    user.Email,
	}, nil
}
