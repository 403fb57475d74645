package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/constants"
	"github.com/chatdeck/chatdeck/internal/auth/middleware"
	"github.com/chatdeck/chatdeck/internal/auth/providers"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// allowedResources bounds the proxy to the resource families each provider
// dashboard view actually uses.
var allowedResources = map[string]map[string]bool{
	"mattermost": {"teams": true, "channels": true, "posts": true, "users": true},
	"trello":     {"boards": true, "lists": true, "cards": true, "members": true},
	"flock":      {"channels": true, "messages": true, "users": true, "roster": true},
}

// Router assembles the full route surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)

	s.auth.RegisterRoutes(r)

	r.Get("/webhooks/{provider}", s.receiver.HandleChallenge)
	r.Post("/webhooks/{provider}", s.receiver.HandleDelivery)

	r.Post("/internal/token", s.handleIssueToken)
	r.Get("/internal/stats", s.handleStats)

	r.Route("/api/{provider}", func(api chi.Router) {
		api.Use(s.auth.RequireCredential())
		api.Get("/search", s.handleSearch)
		api.Get("/users/lookup", s.handleUserLookup)
		api.HandleFunc("/*", s.handleProxy)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProxy forwards an authenticated request to the provider's REST API
// and relays the upstream response unchanged.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	cred, ok := middleware.CredentialFromContext(r.Context())
	if !ok {
		utils.WriteAppError(w, apperr.ErrMissingCredential)
		return
	}

	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if rest == "" {
		utils.WriteAppError(w, apperr.Validation("path", "resource path is required"))
		return
	}
	if !resourceAllowed(provider, rest) {
		utils.WriteAppError(w, apperr.Validation("path", "unknown resource for provider"))
		return
	}

	base := providers.RESTBaseURL(provider, s.config.Provider(provider))
	if base == "" {
		utils.WriteAppError(w, apperr.ErrMissingConfiguration)
		return
	}

	upstream := base + "/" + rest
	if r.URL.RawQuery != "" {
		upstream += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		body = r.Body
	}

	resp, err := s.fwd.Forward(r.Context(), r.Method, upstream, body, cred)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	s.stats.ProxiedRequests.Add(1)

	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		logger.Warn("failed to write proxied response", zap.Error(err))
	}
}

// handleSearch answers one inbound search with two independent upstream
// reads, issued concurrently and joined.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	cred, ok := middleware.CredentialFromContext(r.Context())
	if !ok {
		utils.WriteAppError(w, apperr.ErrMissingCredential)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		utils.WriteAppError(w, apperr.Validation("q", "search term is required"))
		return
	}

	base := providers.RESTBaseURL(provider, s.config.Provider(provider))
	if base == "" {
		utils.WriteAppError(w, apperr.ErrMissingConfiguration)
		return
	}

	var channels, users json.RawMessage
	g, ctx := errgroup.WithContext(r.Context())

	switch provider {
	case "mattermost":
		term, _ := json.Marshal(map[string]string{"term": query})
		g.Go(func() error {
			resp, err := s.fwd.Forward(ctx, http.MethodPost, base+"/channels/search", bytes.NewReader(term), cred)
			if err != nil {
				return err
			}
			channels = resp.Body
			return nil
		})
		g.Go(func() error {
			resp, err := s.fwd.Forward(ctx, http.MethodPost, base+"/users/search", bytes.NewReader(term), cred)
			if err != nil {
				return err
			}
			users = resp.Body
			return nil
		})
	case "trello":
		boardQuery := url.Values{"modelTypes": {"boards"}, "query": {query}}
		memberQuery := url.Values{"modelTypes": {"members"}, "query": {query}}
		g.Go(func() error {
			resp, err := s.fwd.Forward(ctx, http.MethodGet, base+"/search?"+boardQuery.Encode(), nil, cred)
			if err != nil {
				return err
			}
			channels = resp.Body
			return nil
		})
		g.Go(func() error {
			resp, err := s.fwd.Forward(ctx, http.MethodGet, base+"/search?"+memberQuery.Encode(), nil, cred)
			if err != nil {
				return err
			}
			users = resp.Body
			return nil
		})
	default:
		utils.WriteAppError(w, apperr.Validation("provider", "search is not supported for this provider"))
		return
	}

	if err := g.Wait(); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]json.RawMessage{
		"channels": channels,
		"users":    users,
	})
}

// handleUserLookup resolves the caller's Flock user record. Deployments
// disagree on the exact endpoint shape, so a bounded variant list is probed.
func (s *Server) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	cred, ok := middleware.CredentialFromContext(r.Context())
	if !ok {
		utils.WriteAppError(w, apperr.ErrMissingCredential)
		return
	}

	if name != "flock" {
		utils.WriteAppError(w, apperr.Validation("provider", "user lookup is only available for flock"))
		return
	}

	p, err := s.auth.Registry().Get(name)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	flock, ok := p.(*providers.FlockProvider)
	if !ok {
		utils.WriteAppError(w, apperr.ErrMissingConfiguration)
		return
	}

	raw, err := s.fwd.ProbeJSON(r.Context(), flock.UserLookupVariants(), cred)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(raw); err != nil {
		logger.Warn("failed to write lookup response", zap.Error(err))
	}
}

// handleIssueToken issues a short-lived internal bearer token for a slash
// command or dashboard stats client.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		utils.WriteAppError(w, apperr.Validation("client_id", "client_id is required"))
		return
	}

	token := s.tokens.Issue(req.ClientID)
	s.stats.TokensIssued.Add(1)

	logger.Info("internal token issued", zap.String("client_id", req.ClientID))

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(time.Hour.Seconds()),
	})
}

// handleStats returns process counters; protected by an internal bearer token.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get(constants.AuthHeaderName)
	token := strings.TrimPrefix(authHeader, constants.AuthHeaderPrefix)
	if token == "" || token == authHeader {
		utils.WriteAppError(w, apperr.ErrMissingCredential)
		return
	}

	info, err := s.tokens.Validate(token)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"client_id":        info.ClientID,
		"proxied_requests": s.stats.ProxiedRequests.Load(),
		"webhook_events":   s.stats.WebhookEvents.Load(),
		"tokens_issued":    s.stats.TokensIssued.Load(),
		"uptime_seconds":   int(time.Since(s.stats.StartedAt).Seconds()),
	})
}

func resourceAllowed(provider, rest string) bool {
	resources, ok := allowedResources[provider]
	if !ok {
		return false
	}
	head := rest
	if i := strings.IndexAny(head, "/."); i > 0 {
		head = head[:i]
	}
	return resources[head]
}
