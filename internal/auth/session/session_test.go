package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(secure bool) *Manager {
	return NewManager(&config.Config{Cookies: config.CookieConfig{Secure: secure}})
}

// requestWithCookies copies the cookies a previous response set onto a new
// request, mimicking the browser between redirect legs.
func requestWithCookies(rec *httptest.ResponseRecorder, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestPendingRoundTrip(t *testing.T) {
	m := newManager(false)

	pending := &models.PendingAuthorization{
		Provider:  "mattermost",
		State:     "state-1",
		CreatedAt: time.Now(),
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetPending(rec, pending))

	req := requestWithCookies(rec, "/auth/mattermost/callback")
	out := httptest.NewRecorder()
	got, err := m.ConsumePending(out, req, "mattermost")
	require.NoError(t, err)
	assert.Equal(t, "state-1", got.State)

	// Consuming clears the cookie.
	var cleared bool
	for _, c := range out.Result().Cookies() {
		if c.Name == "chatdeck_pending_mattermost" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestConsumePendingAbsent(t *testing.T) {
	m := newManager(false)

	req := httptest.NewRequest(http.MethodGet, "/auth/trello/callback", nil)
	_, err := m.ConsumePending(httptest.NewRecorder(), req, "trello")
	assert.ErrorIs(t, err, apperr.ErrMissingOAuthParameters)
}

func TestConsumePendingExpired(t *testing.T) {
	m := newManager(false)

	pending := &models.PendingAuthorization{
		Provider:  "trello",
		State:     "s",
		CreatedAt: time.Now().Add(-11 * time.Minute),
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetPending(rec, pending))

	req := requestWithCookies(rec, "/auth/trello/callback")
	_, err := m.ConsumePending(httptest.NewRecorder(), req, "trello")
	assert.ErrorIs(t, err, apperr.ErrMissingOAuthParameters)
}

func TestConsumePendingMalformed(t *testing.T) {
	m := newManager(false)

	req := httptest.NewRequest(http.MethodGet, "/auth/trello/callback", nil)
	req.AddCookie(&http.Cookie{Name: "chatdeck_pending_trello", Value: "not-base64-json"})

	_, err := m.ConsumePending(httptest.NewRecorder(), req, "trello")
	assert.ErrorIs(t, err, apperr.ErrMissingOAuthParameters)
}

func TestCredentialRoundTrip(t *testing.T) {
	m := newManager(true)

	cred := &models.Credential{
		Provider:    "trello",
		Protocol:    models.ProtocolOAuth1,
		AccessToken: "tok",
		TokenSecret: "secret",
		UserID:      "u1",
		IssuedAt:    time.Now().Truncate(time.Second),
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetCredential(rec, cred))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	req := requestWithCookies(rec, "/api/trello/boards")
	got, err := m.Credential(req, "trello")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.AccessToken)
	assert.Equal(t, "secret", got.TokenSecret)
	assert.Equal(t, models.ProtocolOAuth1, got.Protocol)
}

func TestCredentialMissing(t *testing.T) {
	m := newManager(false)

	req := httptest.NewRequest(http.MethodGet, "/api/flock/channels", nil)
	_, err := m.Credential(req, "flock")
	assert.ErrorIs(t, err, apperr.ErrMissingCredential)
}

func TestClear(t *testing.T) {
	m := newManager(false)

	rec := httptest.NewRecorder()
	m.Clear(rec, "flock")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "chatdeck_session_flock", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
