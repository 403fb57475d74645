package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/constants"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/auth/providers"
	"github.com/chatdeck/chatdeck/internal/auth/session"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type credentialContextKey string

// CredentialContextKey is used to store the resolved credential in the
// request context.
const CredentialContextKey credentialContextKey = "credential"

// RequireCredential resolves the caller's credential for the {provider}
// route parameter: a bearer Authorization header first, then the provider's
// session cookie. An expired OAuth2 cookie credential is refreshed in place
// when it carries a refresh token. Requests with neither are rejected
// with 401.
func RequireCredential(sessions *session.Manager, registry *providers.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provider := chi.URLParam(r, "provider")

			cred := fromBearer(r, provider, registry)
			if cred == nil {
				var err error
				cred, err = sessions.Credential(r, provider)
				if err != nil {
					utils.WriteAppError(w, apperr.ErrMissingCredential)
					return
				}
				cred, err = refreshIfExpired(w, r, sessions, registry, cred)
				if err != nil {
					utils.WriteAppError(w, apperr.ErrMissingCredential)
					return
				}
			}

			ctx := context.WithValue(r.Context(), CredentialContextKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialFromContext returns the credential resolved by RequireCredential.
func CredentialFromContext(ctx context.Context) (*models.Credential, bool) {
	cred, ok := ctx.Value(CredentialContextKey).(*models.Credential)
	return cred, ok
}

// fromBearer builds an OAuth2 credential from an Authorization header.
// OAuth1 providers cannot authenticate this way: per-request signing needs
// the token secret, which only the session cookie carries — for them the
// header is ignored so the cookie is consulted.
func fromBearer(r *http.Request, provider string, registry *providers.Registry) *models.Credential {
	if p, err := registry.Get(provider); err == nil && p.Protocol() == models.ProtocolOAuth1 {
		return nil
	}
	authHeader := r.Header.Get(constants.AuthHeaderName)
	if !strings.HasPrefix(authHeader, constants.AuthHeaderPrefix) {
		return nil
	}
	token := strings.TrimPrefix(authHeader, constants.AuthHeaderPrefix)
	if token == "" {
		return nil
	}
	return &models.Credential{
		Provider:    provider,
		Protocol:    models.ProtocolOAuth2,
		AccessToken: token,
	}
}

// refreshIfExpired renews an expired OAuth2 credential through the provider's
// refresh operation and re-issues the session cookie. An expired credential
// without a refresh token cannot be renewed and is rejected.
func refreshIfExpired(w http.ResponseWriter, r *http.Request, sessions *session.Manager, registry *providers.Registry, cred *models.Credential) (*models.Credential, error) {
	if cred.Protocol != models.ProtocolOAuth2 || !cred.Expired(time.Now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, apperr.ErrMissingCredential
	}

	p, err := registry.Get(cred.Provider)
	if err != nil {
		return nil, err
	}

	refreshed, err := p.Refresh(r.Context(), cred.RefreshToken)
	if err != nil {
		logger.Warn("credential refresh failed", zap.String("provider", cred.Provider), zap.Error(err))
		return nil, err
	}

	refreshed.UserID = cred.UserID
	refreshed.Username = cred.Username

	if err := sessions.SetCredential(w, refreshed); err != nil {
		return nil, err
	}

	logger.Info("credential refreshed on expiry", zap.String("provider", cred.Provider))
	return refreshed, nil
}
