package models

import "time"

// Protocol identifies the OAuth protocol version a provider speaks.
type Protocol string

const (
	ProtocolOAuth1 Protocol = "oauth1"
	ProtocolOAuth2 Protocol = "oauth2"
)

// Credential authorizes calls to a provider on a user's behalf.
// OAuth1 credentials carry a token secret used for per-request signing;
// OAuth2 credentials carry an optional refresh token and expiry.
type Credential struct {
	Provider     string    `json:"provider"`
	Protocol     Protocol  `json:"protocol"`
	AccessToken  string    `json:"access_token"`
	TokenSecret  string    `json:"token_secret,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Expired reports whether an OAuth2 credential's access token has expired.
// A zero expiry means the token does not expire.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// PendingAuthorization correlates an outbound authorization redirect with its
// callback. OAuth2 stores the state value; OAuth1 stores the request token
// pair. Single-use, expired after a fixed TTL, never persisted durably.
type PendingAuthorization struct {
	Provider           string    `json:"provider"`
	State              string    `json:"state,omitempty"`
	RequestToken       string    `json:"request_token,omitempty"`
	RequestTokenSecret string    `json:"request_token_secret,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Identity is the provider's answer to "who am I" for a credential.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}
