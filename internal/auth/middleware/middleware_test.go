package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/auth/providers"
	"github.com/chatdeck/chatdeck/internal/auth/session"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRefreshingUpstream fakes a Mattermost token endpoint that only honors
// the refresh_token grant.
func newRefreshingUpstream(t *testing.T, refreshCalls *int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		*refreshCalls++
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") != "refresh_token" || r.FormValue("refresh_token") != "good-refresh" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access-token",
			"refresh_token": "rotated-refresh",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	return httptest.NewServer(mux)
}

func newTestRouter(t *testing.T, upstreamURL string) (http.Handler, *session.Manager) {
	cfg := &config.Config{
		Mattermost: &config.ProviderConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "http://localhost/auth/mattermost/callback",
			BaseURL:      upstreamURL,
		},
		Trello: &config.ProviderConfig{
			ClientID:     "consumer-key",
			ClientSecret: "consumer-secret",
			RedirectURI:  "http://localhost/auth/trello/callback",
		},
	}

	fwd := forwarder.NewForwarder(forwarder.ForwarderParams{
		AuthManager: forwarder.NewCredentialAuthManager(cfg),
	})
	registry := providers.NewRegistry(cfg, fwd)
	sessions := session.NewManager(cfg)

	r := chi.NewRouter()
	r.Route("/api/{provider}", func(api chi.Router) {
		api.Use(RequireCredential(sessions, registry))
		api.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			cred, ok := CredentialFromContext(r.Context())
			require.True(t, ok)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"token":    cred.AccessToken,
				"protocol": string(cred.Protocol),
			})
		})
	})
	return r, sessions
}

// credentialCookies serializes a credential through the session manager and
// returns the resulting cookies.
func credentialCookies(t *testing.T, sessions *session.Manager, cred *models.Credential) []*http.Cookie {
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.SetCredential(rec, cred))
	return rec.Result().Cookies()
}

func TestExpiredCredentialRefreshedInPlace(t *testing.T) {
	refreshCalls := 0
	upstream := newRefreshingUpstream(t, &refreshCalls)
	defer upstream.Close()

	router, sessions := newTestRouter(t, upstream.URL)

	stale := &models.Credential{
		Provider:     "mattermost",
		Protocol:     models.ProtocolOAuth2,
		AccessToken:  "stale-access-token",
		RefreshToken: "good-refresh",
		Expiry:       time.Now().Add(-time.Minute),
		UserID:       "u1",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/mattermost/whoami", nil)
	for _, c := range credentialCookies(t, sessions, stale) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, refreshCalls)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "new-access-token", body["token"])

	// The renewed credential is written back to the session cookie.
	var reissued *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "chatdeck_session_mattermost" {
			reissued = c
		}
	}
	require.NotNil(t, reissued)
	assert.NotEmpty(t, reissued.Value)

	followUp := httptest.NewRequest(http.MethodGet, "/api/mattermost/whoami", nil)
	followUp.AddCookie(reissued)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, followUp)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, refreshCalls, "renewed credential must not trigger another refresh")
}

func TestExpiredCredentialWithoutRefreshTokenRejected(t *testing.T) {
	refreshCalls := 0
	upstream := newRefreshingUpstream(t, &refreshCalls)
	defer upstream.Close()

	router, sessions := newTestRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/mattermost/whoami", nil)
	for _, c := range credentialCookies(t, sessions, &models.Credential{
		Provider:    "mattermost",
		Protocol:    models.ProtocolOAuth2,
		AccessToken: "stale-access-token",
		Expiry:      time.Now().Add(-time.Minute),
	}) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, refreshCalls)
}

func TestExpiredCredentialRefreshRejectedUpstream(t *testing.T) {
	refreshCalls := 0
	upstream := newRefreshingUpstream(t, &refreshCalls)
	defer upstream.Close()

	router, sessions := newTestRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/mattermost/whoami", nil)
	for _, c := range credentialCookies(t, sessions, &models.Credential{
		Provider:     "mattermost",
		Protocol:     models.ProtocolOAuth2,
		AccessToken:  "stale-access-token",
		RefreshToken: "revoked-refresh",
		Expiry:       time.Now().Add(-time.Minute),
	}) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, refreshCalls)
}

func TestUnexpiredCredentialPassesUnchanged(t *testing.T) {
	refreshCalls := 0
	upstream := newRefreshingUpstream(t, &refreshCalls)
	defer upstream.Close()

	router, sessions := newTestRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/mattermost/whoami", nil)
	for _, c := range credentialCookies(t, sessions, &models.Credential{
		Provider:     "mattermost",
		Protocol:     models.ProtocolOAuth2,
		AccessToken:  "live-access-token",
		RefreshToken: "good-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, refreshCalls)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "live-access-token", body["token"])
}

func TestBearerIgnoredForSignedProvider(t *testing.T) {
	router, sessions := newTestRouter(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodGet, "/api/trello/whoami", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	for _, c := range credentialCookies(t, sessions, &models.Credential{
		Provider:    "trello",
		Protocol:    models.ProtocolOAuth1,
		AccessToken: "cookie-token",
		TokenSecret: "cookie-secret",
	}) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cookie-token", body["token"])
	assert.Equal(t, string(models.ProtocolOAuth1), body["protocol"])
}

func TestBearerAloneRejectedForSignedProvider(t *testing.T) {
	router, _ := newTestRouter(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodGet, "/api/trello/whoami", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
