package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// oauth2Provider is the shared OAuth2 implementation behind the Mattermost
// and Flock providers. The provider-specific pieces are the endpoint set,
// the identity URL and the identity parser.
type oauth2Provider struct {
	name          string
	cfg           *config.ProviderConfig
	oauthCfg      *oauth2.Config
	identityURL   string
	parseIdentity func([]byte) (*models.Identity, error)
	fwd           *forwarder.Forwarder
}

func (p *oauth2Provider) Name() string { return p.name }

func (p *oauth2Provider) Protocol() models.Protocol { return models.ProtocolOAuth2 }

func (p *oauth2Provider) BeginAuthorization(ctx context.Context) (string, *models.PendingAuthorization, error) {
	if !p.cfg.Complete() {
		return "", nil, fmt.Errorf("%s oauth config: %w", p.name, apperr.ErrMissingConfiguration)
	}

	state := uuid.NewString()
	authURL := p.oauthCfg.AuthCodeURL(state)

	logger.Info("begin authorization",
		zap.String("provider", p.name),
		zap.String("client_id", config.MaskSecret(p.cfg.ClientID)),
	)

	return authURL, &models.PendingAuthorization{
		Provider:  p.name,
		State:     state,
		CreatedAt: time.Now(),
	}, nil
}

func (p *oauth2Provider) CompleteAuthorization(ctx context.Context, params url.Values, pending *models.PendingAuthorization) (*models.Credential, error) {
	if errCode := params.Get("error"); errCode != "" {
		logger.Warn("authorization denied", zap.String("provider", p.name), zap.String("code", errCode))
		return nil, fmt.Errorf("%w: %s", apperr.ErrAuthorizationDenied, errCode)
	}

	code := params.Get("code")
	state := params.Get("state")
	if code == "" || state == "" {
		return nil, fmt.Errorf("%w: code and state are required", apperr.ErrMissingOAuthParameters)
	}
	if pending == nil || pending.State == "" {
		return nil, fmt.Errorf("%w: no pending authorization", apperr.ErrMissingOAuthParameters)
	}
	if state != pending.State {
		logger.Warn("state mismatch on callback", zap.String("provider", p.name))
		return nil, apperr.ErrStateMismatch
	}

	tok, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuth2Error(err)
	}

	logger.Info("authorization complete", zap.String("provider", p.name))

	return &models.Credential{
		Provider:     p.name,
		Protocol:     models.ProtocolOAuth2,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		IssuedAt:     time.Now(),
	}, nil
}

func (p *oauth2Provider) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token", apperr.ErrMissingOAuthParameters)
	}

	tok, err := p.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyOAuth2Error(err)
	}

	// Some providers rotate the refresh token, others omit it; keep the old
	// one when the response leaves it blank.
	rotated := tok.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}

	logger.Info("credential refreshed", zap.String("provider", p.name))

	return &models.Credential{
		Provider:     p.name,
		Protocol:     models.ProtocolOAuth2,
		AccessToken:  tok.AccessToken,
		RefreshToken: rotated,
		Expiry:       tok.Expiry,
		IssuedAt:     time.Now(),
	}, nil
}

func (p *oauth2Provider) Identity(ctx context.Context, cred *models.Credential) (*models.Identity, error) {
	resp, err := p.fwd.Forward(ctx, http.MethodGet, p.identityURL, nil, cred)
	if err != nil {
		return nil, fmt.Errorf("%s identity lookup: %w", p.name, err)
	}
	return p.parseIdentity(resp.Body)
}

func (p *oauth2Provider) Revoke(ctx context.Context, cred *models.Credential) error {
	// Local-only invalidation; the upstream token is left to expire.
	logger.Info("credential revoked", zap.String("provider", p.name), zap.String("user_id", cred.UserID))
	return nil
}

// classifyOAuth2Error maps token-endpoint failures onto the shared taxonomy:
// a non-success status becomes UpstreamError, anything else means the
// endpoint was unreachable.
func classifyOAuth2Error(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		return &apperr.UpstreamError{Status: status, Details: string(rErr.Body)}
	}
	return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
}
