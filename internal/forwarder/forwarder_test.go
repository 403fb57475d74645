package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestForwarder() *Forwarder {
	cfg := &config.Config{
		Trello: &config.ProviderConfig{
			ClientID:     "consumer-key",
			ClientSecret: "consumer-secret",
			RedirectURI:  "http://localhost/auth/trello/callback",
		},
	}
	return NewForwarder(ForwarderParams{AuthManager: NewCredentialAuthManager(cfg)})
}

func bearerCred(provider string) *models.Credential {
	return &models.Credential{
		Provider:    provider,
		Protocol:    models.ProtocolOAuth2,
		AccessToken: "tok-123",
	}
}

func TestForwardSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer upstream.Close()

	fwd := newTestForwarder()
	resp, err := fwd.Forward(context.Background(), http.MethodGet, upstream.URL+"/test", nil, bearerCred("mattermost"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, "success", body["status"])
}

func TestForwardUpstreamErrorPreservesStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such board", http.StatusNotFound)
	}))
	defer upstream.Close()

	fwd := newTestForwarder()
	_, err := fwd.Forward(context.Background(), http.MethodGet, upstream.URL+"/boards/x", nil, bearerCred("mattermost"))
	require.Error(t, err)

	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.Status)
	assert.Contains(t, ue.Details, "no such board")
	assert.NotErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestForwardTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	fwd := newTestForwarder()
	fwd.SetTimeout(20 * time.Millisecond)

	_, err := fwd.Forward(context.Background(), http.MethodGet, upstream.URL, nil, bearerCred("mattermost"))
	assert.ErrorIs(t, err, apperr.ErrUpstreamTimeout)
}

func TestForwardUnavailable(t *testing.T) {
	// Closed port: connection refused.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	fwd := newTestForwarder()
	_, err := fwd.Forward(context.Background(), http.MethodGet, url, nil, bearerCred("mattermost"))
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestForwardMissingCredential(t *testing.T) {
	fwd := newTestForwarder()
	_, err := fwd.Forward(context.Background(), http.MethodGet, "http://localhost/test", nil, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingCredential)
}

func TestForwardOAuth1Signing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(authHeader, "OAuth "), "expected OAuth1 signature header, got %q", authHeader)
		assert.Contains(t, authHeader, `oauth_consumer_key="consumer-key"`)
		assert.Contains(t, authHeader, `oauth_signature=`)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cred := &models.Credential{
		Provider:    "trello",
		Protocol:    models.ProtocolOAuth1,
		AccessToken: "access-token",
		TokenSecret: "access-secret",
	}

	fwd := newTestForwarder()
	_, err := fwd.Forward(context.Background(), http.MethodGet, upstream.URL+"/members/me", nil, cred)
	require.NoError(t, err)
}

func TestForwardOAuth1WithoutConsumerConfig(t *testing.T) {
	fwd := NewForwarder(ForwarderParams{AuthManager: NewCredentialAuthManager(&config.Config{})})

	cred := &models.Credential{
		Provider:    "trello",
		Protocol:    models.ProtocolOAuth1,
		AccessToken: "access-token",
		TokenSecret: "access-secret",
	}

	_, err := fwd.Forward(context.Background(), http.MethodGet, "http://localhost/members/me", nil, cred)
	assert.ErrorIs(t, err, apperr.ErrMissingConfiguration)
}

func TestProbeJSON(t *testing.T) {
	t.Run("short-circuits on first success", func(t *testing.T) {
		var hits []string
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, r.URL.Path)
			switch r.URL.Path {
			case "/bad":
				http.Error(w, "nope", http.StatusNotFound)
			default:
				_, _ = w.Write([]byte(`{"id":"u1"}`))
			}
		}))
		defer upstream.Close()

		fwd := newTestForwarder()
		raw, err := fwd.ProbeJSON(context.Background(), []Variant{
			{BaseURL: upstream.URL, Path: "/bad", Style: AuthHeaderBearer},
			{BaseURL: upstream.URL, Path: "/good", Style: AuthQueryToken},
			{BaseURL: upstream.URL, Path: "/never", Style: AuthHeaderBearer},
		}, bearerCred("flock"))

		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"u1"}`, string(raw))
		assert.Equal(t, []string{"/bad", "/good"}, hits)
	})

	t.Run("aggregates last failure when all variants fail", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "broken", http.StatusBadGateway)
		}))
		defer upstream.Close()

		fwd := newTestForwarder()
		_, err := fwd.ProbeJSON(context.Background(), []Variant{
			{BaseURL: upstream.URL, Path: "/a", Style: AuthHeaderBearer},
			{BaseURL: upstream.URL, Path: "/b", Style: AuthHeaderBearer},
		}, bearerCred("flock"))

		require.Error(t, err)
		var ue *apperr.UpstreamError
		assert.True(t, errors.As(err, &ue))
	})

	t.Run("rejects non-JSON success bodies", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}))
		defer upstream.Close()

		fwd := newTestForwarder()
		_, err := fwd.ProbeJSON(context.Background(), []Variant{
			{BaseURL: upstream.URL, Path: "/", Style: AuthHeaderBearer},
		}, bearerCred("flock"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-JSON")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable,
			"exhausting variants on malformed bodies is an upstream failure")
	})

	t.Run("enforces variant cap", func(t *testing.T) {
		fwd := newTestForwarder()
		variants := make([]Variant, MaxProbeVariants+1)
		_, err := fwd.ProbeJSON(context.Background(), variants, bearerCred("flock"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cap")
	})
}

func TestApplyAuthQueryToken(t *testing.T) {
	mgr := NewCredentialAuthManager(&config.Config{})
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/users.getInfo", nil)

	err := mgr.ApplyAuth(req, bearerCred("flock"), AuthQueryToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", req.URL.Query().Get("token"))
	assert.Empty(t, req.Header.Get("Authorization"))
}
