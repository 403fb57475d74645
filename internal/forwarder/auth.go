package forwarder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/dghubble/oauth1"
)

// AuthManager handles request authentication
type AuthManager interface {
	// ClientFor returns the HTTP client for a credential. OAuth1 credentials
	// get a signing transport; signatures are per-request, not reusable.
	ClientFor(ctx context.Context, cred *models.Credential, timeout time.Duration) (*http.Client, error)

	// ApplyAuth attaches bearer-style authentication to the request.
	ApplyAuth(req *http.Request, cred *models.Credential, style AuthStyle) error
}

// CredentialAuthManager implements AuthManager over the per-provider
// configuration, which supplies the OAuth1 consumer key/secret pair.
type CredentialAuthManager struct {
	cfg *config.Config
}

// NewCredentialAuthManager creates a new CredentialAuthManager
func NewCredentialAuthManager(cfg *config.Config) *CredentialAuthManager {
	return &CredentialAuthManager{cfg: cfg}
}

func (a *CredentialAuthManager) ClientFor(ctx context.Context, cred *models.Credential, timeout time.Duration) (*http.Client, error) {
	if cred == nil {
		return nil, apperr.ErrMissingCredential
	}
	if cred.Protocol != models.ProtocolOAuth1 {
		return &http.Client{Timeout: timeout}, nil
	}

	pc := a.cfg.Provider(cred.Provider)
	if !pc.Complete() {
		return nil, fmt.Errorf("consumer pair for %s: %w", cred.Provider, apperr.ErrMissingConfiguration)
	}

	signer := oauth1.NewConfig(pc.ClientID, pc.ClientSecret)
	client := signer.Client(ctx, oauth1.NewToken(cred.AccessToken, cred.TokenSecret))
	client.Timeout = timeout
	return client, nil
}

func (a *CredentialAuthManager) ApplyAuth(req *http.Request, cred *models.Credential, style AuthStyle) error {
	if cred == nil {
		return apperr.ErrMissingCredential
	}
	if cred.Protocol == models.ProtocolOAuth1 {
		// Signed by the transport.
		return nil
	}

	switch style {
	case AuthHeaderBearer:
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	case AuthQueryToken:
		q := req.URL.Query()
		q.Set("token", cred.AccessToken)
		req.URL.RawQuery = q.Encode()
	default:
		return fmt.Errorf("unsupported auth style: %d", style)
	}
	return nil
}
