// Package forwarder wraps outbound calls to provider REST APIs with the
// caller's credential, uniform error shaping and timeout enforcement.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/auth/models"
	"github.com/chatdeck/chatdeck/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Forwarder forwards authenticated requests to provider APIs.
type Forwarder struct {
	timeout time.Duration
	authMgr AuthManager
}

type ForwarderParams struct {
	fx.In

	AuthManager AuthManager
}

// NewForwarder creates a new Forwarder with the default timeout.
func NewForwarder(params ForwarderParams) *Forwarder {
	return &Forwarder{
		timeout: defaultTimeout,
		authMgr: params.AuthManager,
	}
}

// SetTimeout sets the timeout for outbound calls
func (f *Forwarder) SetTimeout(timeout time.Duration) {
	f.timeout = timeout
}

// Forward issues an authenticated request and returns the upstream response.
// Non-2xx responses surface as *apperr.UpstreamError with the original status
// preserved. Network failures surface as ErrUpstreamUnavailable, deadline
// expiry as ErrUpstreamTimeout.
func (f *Forwarder) Forward(ctx context.Context, method, rawURL string, body io.Reader, cred *models.Credential) (*Response, error) {
	return f.forward(ctx, method, rawURL, body, cred, AuthHeaderBearer)
}

func (f *Forwarder) forward(ctx context.Context, method, rawURL string, body io.Reader, cred *models.Credential, style AuthStyle) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := f.authMgr.ApplyAuth(req, cred, style); err != nil {
		return nil, err
	}

	client, err := f.authMgr.ClientFor(ctx, cred, f.timeout)
	if err != nil {
		return nil, err
	}

	logger.Debug("forwarding request",
		zap.String("method", method),
		zap.String("url", req.URL.Redacted()),
		zap.String("provider", cred.Provider),
	)

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("upstream error",
			zap.String("provider", cred.Provider),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &apperr.UpstreamError{
			Status:  resp.StatusCode,
			Details: truncate(string(bodyBytes), 2048),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// ProbeJSON tries an ordered list of endpoint variants sequentially,
// short-circuiting on the first 2xx response with a parseable JSON body.
// If every variant fails, the last failure is returned. The variant list is
// bounded by MaxProbeVariants.
func (f *Forwarder) ProbeJSON(ctx context.Context, variants []Variant, cred *models.Credential) (json.RawMessage, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("no probe variants supplied")
	}
	if len(variants) > MaxProbeVariants {
		return nil, fmt.Errorf("probe variant list exceeds cap of %d", MaxProbeVariants)
	}

	var lastErr error
	for _, v := range variants {
		url := strings.TrimRight(v.BaseURL, "/") + v.Path
		resp, err := f.forward(ctx, http.MethodGet, url, nil, cred, v.Style)
		if err != nil {
			lastErr = err
			continue
		}
		if !json.Valid(resp.Body) {
			lastErr = fmt.Errorf("%w: variant %s returned non-JSON body", apperr.ErrUpstreamUnavailable, url)
			continue
		}
		return json.RawMessage(resp.Body), nil
	}
	return nil, fmt.Errorf("all probe variants failed: %w", lastErr)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
