// Package handlers implements the OAuth redirect endpoints. Failures in
// these flows redirect back to the dashboard page with an error code in the
// query string instead of returning a raw error status.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/providers"
	"github.com/chatdeck/chatdeck/internal/auth/session"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler handles the OAuth login, callback and logout routes.
type Handler struct {
	registry     *providers.Registry
	sessions     *session.Manager
	dashboardURL string
}

// NewHandler creates a new Handler instance
func NewHandler(registry *providers.Registry, sessions *session.Manager, dashboardURL string) *Handler {
	return &Handler{
		registry:     registry,
		sessions:     sessions,
		dashboardURL: dashboardURL,
	}
}

// HandleLogin handles GET /auth/{provider}/login: begins the authorization
// handshake, stores the pending request in a short-lived cookie and
// redirects to the provider's authorization page.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	provider, err := h.registry.Get(name)
	if err != nil {
		h.redirectError(w, r, name, err)
		return
	}

	authURL, pending, err := provider.BeginAuthorization(r.Context())
	if err != nil {
		logger.Error("begin authorization failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, name, err)
		return
	}

	if err := h.sessions.SetPending(w, pending); err != nil {
		logger.Error("failed to store pending authorization", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, name, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles GET /auth/{provider}/callback: consumes the pending
// request exactly once, exchanges the callback parameters for a credential,
// verifies it against the provider's identity endpoint and establishes the
// session cookie.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	provider, err := h.registry.Get(name)
	if err != nil {
		h.redirectError(w, r, name, err)
		return
	}

	pending, err := h.sessions.ConsumePending(w, r, name)
	if err != nil {
		h.redirectError(w, r, name, err)
		return
	}

	cred, err := provider.CompleteAuthorization(r.Context(), r.URL.Query(), pending)
	if err != nil {
		logger.Warn("authorization callback failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, name, err)
		return
	}

	identity, err := provider.Identity(r.Context(), cred)
	if err != nil {
		logger.Warn("identity verification failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, name, err)
		return
	}
	cred.UserID = identity.ID
	cred.Username = identity.Username

	if err := h.sessions.SetCredential(w, cred); err != nil {
		h.redirectError(w, r, name, err)
		return
	}

	logger.Info("provider connected",
		zap.String("provider", name),
		zap.String("user_id", identity.ID),
	)

	http.Redirect(w, r, h.dashboardURL+"?connected="+url.QueryEscape(name), http.StatusFound)
}

// HandleLogout handles POST /auth/{provider}/logout: local-only credential
// invalidation.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	if provider, err := h.registry.Get(name); err == nil {
		if cred, err := h.sessions.Credential(r, name); err == nil {
			if err := provider.Revoke(r.Context(), cred); err != nil {
				logger.Warn("revoke failed", zap.String("provider", name), zap.Error(err))
			}
		}
	}

	h.sessions.Clear(w, name)
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out", "provider": name})
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	q := url.Values{}
	q.Set("error", apperr.Code(err))
	q.Set("provider", provider)
	http.Redirect(w, r, h.dashboardURL+"?"+q.Encode(), http.StatusFound)
}
