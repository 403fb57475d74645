// Package session encodes provider credentials and pending authorization
// state into cookies. Pending state is cookie-only and short-lived; it is
// never written to durable storage.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/constants"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
)

// Manager issues and reads the session and pending-authorization cookies.
type Manager struct {
	secure bool
}

// NewManager creates a new cookie session manager.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{secure: cfg.Cookies.Secure}
}

// SetPending stores a pending authorization request in a short-lived cookie.
func (m *Manager) SetPending(w http.ResponseWriter, pending *models.PendingAuthorization) error {
	value, err := encode(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending authorization: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     constants.PendingCookiePrefix + pending.Provider,
		Value:    value,
		Path:     "/",
		MaxAge:   int(constants.PendingCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ConsumePending reads the pending authorization for a provider and clears
// the cookie immediately, so the value is usable exactly once. Expired or
// absent state yields MissingOAuthParameters.
func (m *Manager) ConsumePending(w http.ResponseWriter, r *http.Request, provider string) (*models.PendingAuthorization, error) {
	name := constants.PendingCookiePrefix + provider
	cookie, err := r.Cookie(name)

	// Invalidate regardless of outcome.
	m.expire(w, name)

	if err != nil {
		return nil, fmt.Errorf("%w: no pending authorization", apperr.ErrMissingOAuthParameters)
	}

	var pending models.PendingAuthorization
	if err := decode(cookie.Value, &pending); err != nil {
		return nil, fmt.Errorf("%w: malformed pending authorization", apperr.ErrMissingOAuthParameters)
	}
	if time.Since(pending.CreatedAt) > constants.PendingCookieTTL {
		return nil, fmt.Errorf("%w: pending authorization expired", apperr.ErrMissingOAuthParameters)
	}
	return &pending, nil
}

// SetCredential stores a provider credential in the session cookie.
func (m *Manager) SetCredential(w http.ResponseWriter, cred *models.Credential) error {
	value, err := encode(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookiePrefix + cred.Provider,
		Value:    value,
		Path:     "/",
		MaxAge:   int(constants.SessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Credential reads the stored credential for a provider.
func (m *Manager) Credential(r *http.Request, provider string) (*models.Credential, error) {
	cookie, err := r.Cookie(constants.SessionCookiePrefix + provider)
	if err != nil {
		return nil, apperr.ErrMissingCredential
	}
	var cred models.Credential
	if err := decode(cookie.Value, &cred); err != nil {
		return nil, fmt.Errorf("%w: malformed session cookie", apperr.ErrMissingCredential)
	}
	return &cred, nil
}

// Clear removes the session cookie for a provider.
func (m *Manager) Clear(w http.ResponseWriter, provider string) {
	m.expire(w, constants.SessionCookiePrefix+provider)
}

func (m *Manager) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func encode(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decode(value string, v interface{}) error {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
