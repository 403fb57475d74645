package providers

import (
	"context"
	"net/url"

	"github.com/chatdeck/chatdeck/internal/auth/models"
)

// Provider defines the interface that all platform OAuth clients implement.
// OAuth1 and OAuth2 providers share this shape; protocol differences live in
// the implementations.
type Provider interface {
	// Name returns the provider identifier ("trello", "mattermost", "flock").
	Name() string

	// Protocol returns the OAuth protocol version the provider speaks.
	Protocol() models.Protocol

	// BeginAuthorization starts the authorization handshake and returns the
	// user-facing redirect target together with the pending request that the
	// callback must present. The pending request is single-use.
	BeginAuthorization(ctx context.Context) (string, *models.PendingAuthorization, error)

	// CompleteAuthorization consumes the callback parameters and the pending
	// request and exchanges them for a Credential.
	CompleteAuthorization(ctx context.Context, params url.Values, pending *models.PendingAuthorization) (*models.Credential, error)

	// Refresh exchanges a refresh token for a new Credential. OAuth1
	// providers return apperr.ErrRefreshNotSupported.
	Refresh(ctx context.Context, refreshToken string) (*models.Credential, error)

	// Identity calls the provider's "who am I" endpoint for a credential.
	Identity(ctx context.Context, cred *models.Credential) (*models.Identity, error)

	// Revoke invalidates the credential locally. Upstream revocation is not
	// attempted; callers drop their stored copy after this returns.
	Revoke(ctx context.Context, cred *models.Credential) error
}
