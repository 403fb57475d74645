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

const (
	flockDefaultBaseURL = "https://api.flock.co/v1"
	flockAuthorizeURL   = "https://web.flock.com/oauth/authorize"
)

// NewFlockProvider creates the OAuth2 client for Flock. The token and
// identity endpoints live under the API base URL; the authorization page is
// on the web host.
func NewFlockProvider(cfg *config.ProviderConfig, fwd *forwarder.Forwarder) *FlockProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = flockDefaultBaseURL
	}

	return &FlockProvider{oauth2Provider{
		name: "flock",
		cfg:  cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  flockAuthorizeURL,
				TokenURL: base + "/oauth.accessToken",
			},
		},
		identityURL:   base + "/users.getInfo",
		parseIdentity: parseFlockIdentity,
		fwd:           fwd,
	}}
}

type FlockProvider struct {
	oauth2Provider
}

// UserLookupVariants returns the bounded probe list for the users-lookup
// path. Flock deployments differ in whether the token rides in a query
// parameter or a bearer header, so both are tried in order.
func (p *FlockProvider) UserLookupVariants() []forwarder.Variant {
	base := strings.TrimRight(p.cfg.BaseURL, "/")
	if base == "" {
		base = flockDefaultBaseURL
	}
	return []forwarder.Variant{
		{BaseURL: base, Path: "/users.getInfo", Style: forwarder.AuthQueryToken},
		{BaseURL: base, Path: "/users.getInfo", Style: forwarder.AuthHeaderBearer},
	}
}

func parseFlockIdentity(body []byte) (*models.Identity, error) {
	var user struct {
		ID        string `json:"id"`
		UserID    string `json:"userId"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode users.getInfo response: %w", err)
	}

	id := user.ID
	if id == "" {
		id = user.UserID
	}
	return &models.Identity{
		ID:       id,
		Username: user.Email,
		Name:     strings.TrimSpace(user.FirstName + " " + user.LastName),
		Email:    user.Email,
	}, nil
}
