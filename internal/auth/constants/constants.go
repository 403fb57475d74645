package constants

import "time"

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = TokenType + " "

	// PendingCookieTTL bounds how long an authorization redirect may stay
	// outstanding before its callback is rejected.
	PendingCookieTTL = 10 * time.Minute

	// SessionCookieTTL is the lifetime of a provider session cookie.
	SessionCookieTTL = 30 * 24 * time.Hour
)

// Cookie names, suffixed with the provider name.
const (
	PendingCookiePrefix = "chatdeck_pending_"
	SessionCookiePrefix = "chatdeck_session_"
)
