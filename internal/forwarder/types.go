package forwarder

import "net/http"

// Response represents an upstream HTTP response with a 2xx status.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// AuthStyle selects how a credential is attached to an outbound request.
// OAuth1 credentials are always signed per request regardless of style.
type AuthStyle int

const (
	// AuthHeaderBearer sends the access token in an Authorization header.
	AuthHeaderBearer AuthStyle = iota

	// AuthQueryToken sends the access token as a `token` query parameter.
	AuthQueryToken
)

// Variant is one {base URL, path, auth style} combination for endpoint
// probing. Variant lists must be short, documented per provider, and are
// capped at MaxProbeVariants.
type Variant struct {
	BaseURL string
	Path    string
	Style   AuthStyle
}

// MaxProbeVariants is the hard cap on probing attempts for one lookup.
const MaxProbeVariants = 4
