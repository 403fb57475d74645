package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/dghubble/oauth1"
	"go.uber.org/zap"
)

const (
	trelloRequestTokenURL = "https://trello.com/1/OAuthGetRequestToken"
	trelloAuthorizeURL    = "https://trello.com/1/OAuthAuthorizeToken"
	trelloAccessTokenURL  = "https://trello.com/1/OAuthGetAccessToken"
	trelloAPIBaseURL      = "https://api.trello.com/1"
)

// TrelloProvider implements the OAuth 1.0a handshake. There is no refresh
// operation: an expired or revoked token requires a new request-token cycle.
type TrelloProvider struct {
	cfg      *config.ProviderConfig
	oauthCfg *oauth1.Config
	apiBase  string
	fwd      *forwarder.Forwarder
}

// NewTrelloProvider creates the OAuth1 client for Trello. ClientID and
// ClientSecret act as the consumer key/secret pair.
func NewTrelloProvider(cfg *config.ProviderConfig, fwd *forwarder.Forwarder) *TrelloProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = trelloAPIBaseURL
	}

	return &TrelloProvider{
		cfg: cfg,
		oauthCfg: &oauth1.Config{
			ConsumerKey:    cfg.ClientID,
			ConsumerSecret: cfg.ClientSecret,
			CallbackURL:    cfg.RedirectURI,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: trelloRequestTokenURL,
				AuthorizeURL:    trelloAuthorizeURL,
				AccessTokenURL:  trelloAccessTokenURL,
			},
		},
		apiBase: base,
		fwd:     fwd,
	}
}

func (p *TrelloProvider) Name() string { return "trello" }

func (p *TrelloProvider) Protocol() models.Protocol { return models.ProtocolOAuth1 }

func (p *TrelloProvider) BeginAuthorization(ctx context.Context) (string, *models.PendingAuthorization, error) {
	if !p.cfg.Complete() {
		return "", nil, fmt.Errorf("trello oauth config: %w", apperr.ErrMissingConfiguration)
	}

	requestToken, requestSecret, err := p.oauthCfg.RequestToken()
	if err != nil {
		logger.Error("failed to obtain request token", zap.String("provider", "trello"), zap.Error(err))
		return "", nil, fmt.Errorf("%w: request token: %v", apperr.ErrUpstreamUnavailable, err)
	}

	authURL, err := p.oauthCfg.AuthorizationURL(requestToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	q := authURL.Query()
	if p.cfg.AppName != "" {
		q.Set("name", p.cfg.AppName)
	}
	q.Set("scope", "read,write")
	q.Set("expiration", "never")
	authURL.RawQuery = q.Encode()

	logger.Info("begin authorization",
		zap.String("provider", "trello"),
		zap.String("consumer_key", config.MaskSecret(p.cfg.ClientID)),
	)

	return authURL.String(), &models.PendingAuthorization{
		Provider:           "trello",
		RequestToken:       requestToken,
		RequestTokenSecret: requestSecret,
		CreatedAt:          time.Now(),
	}, nil
}

func (p *TrelloProvider) CompleteAuthorization(ctx context.Context, params url.Values, pending *models.PendingAuthorization) (*models.Credential, error) {
	token := params.Get("oauth_token")
	verifier := params.Get("oauth_verifier")
	if token == "" || verifier == "" {
		return nil, fmt.Errorf("%w: oauth_token and oauth_verifier are required", apperr.ErrMissingOAuthParameters)
	}
	if pending == nil || pending.RequestToken == "" {
		return nil, fmt.Errorf("%w: no pending request token", apperr.ErrMissingOAuthParameters)
	}
	if token != pending.RequestToken {
		logger.Warn("callback token does not match pending request", zap.String("provider", "trello"))
		return nil, apperr.ErrStateMismatch
	}

	accessToken, accessSecret, err := p.oauthCfg.AccessToken(pending.RequestToken, pending.RequestTokenSecret, verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: access token exchange: %v", apperr.ErrUpstreamUnavailable, err)
	}

	logger.Info("authorization complete", zap.String("provider", "trello"))

	return &models.Credential{
		Provider:    "trello",
		Protocol:    models.ProtocolOAuth1,
		AccessToken: accessToken,
		TokenSecret: accessSecret,
		IssuedAt:    time.Now(),
	}, nil
}

func (p *TrelloProvider) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	return nil, apperr.ErrRefreshNotSupported
}

func (p *TrelloProvider) Identity(ctx context.Context, cred *models.Credential) (*models.Identity, error) {
	resp, err := p.fwd.Forward(ctx, http.MethodGet, p.apiBase+"/members/me", nil, cred)
	if err != nil {
		return nil, fmt.Errorf("trello identity lookup: %w", err)
	}

	var member struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(resp.Body, &member); err != nil {
		return nil, fmt.Errorf("failed to decode members/me response: %w", err)
	}

	return &models.Identity{
		ID:       member.ID,
		Username: member.Username,
		Name:     member.FullName,
		Email:    member.Email,
	}, nil
}

func (p *TrelloProvider) Revoke(ctx context.Context, cred *models.Credential) error {
	logger.Info("credential revoked", zap.String("provider", "trello"), zap.String("user_id", cred.UserID))
	return nil
}

// APIBase returns the REST base URL for proxied calls.
func (p *TrelloProvider) APIBase() string {
	return p.apiBase
}
