// Package server provides the HTTP server composing the OAuth service, the
// request forwarder, the token store and the webhook receiver into the
// dashboard's route surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chatdeck/chatdeck/internal/auth"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/forwarder"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/tokenstore"
	"github.com/chatdeck/chatdeck/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// shutdownTimeout is the maximum time to wait for server shutdown
	shutdownTimeout = 5 * time.Second
)

// Stats holds process counters exposed by the internal stats endpoint.
type Stats struct {
	ProxiedRequests atomic.Int64
	WebhookEvents   atomic.Int64
	TokensIssued    atomic.Int64
	StartedAt       time.Time
}

// Server handles the dashboard's HTTP surface.
type Server struct {
	config   *config.Config
	auth     *auth.Service
	fwd      *forwarder.Forwarder
	tokens   tokenstore.Store
	receiver *webhook.Receiver
	stats    *Stats
}

type ServerParams struct {
	fx.In

	Config   *config.Config
	Auth     *auth.Service
	Fwd      *forwarder.Forwarder
	Tokens   tokenstore.Store
	Receiver *webhook.Receiver
}

// NewServer creates a new server instance and registers the default webhook
// event handlers.
func NewServer(params ServerParams) *Server {
	s := &Server{
		config:   params.Config,
		auth:     params.Auth,
		fwd:      params.Fwd,
		tokens:   params.Tokens,
		receiver: params.Receiver,
		stats:    &Stats{StartedAt: time.Now()},
	}

	s.registerWebhookHandlers()
	return s
}

// registerWebhookHandlers wires the event types the dashboard reacts to.
// Handling is currently log-and-count; unknown types are acknowledged by the
// receiver itself.
func (s *Server) registerWebhookHandlers() {
	logEvent := func(ctx context.Context, evt webhook.Event) {
		s.stats.WebhookEvents.Add(1)
		logger.Info("webhook event",
			zap.String("provider", evt.Provider),
			zap.String("event", evt.Type),
			zap.String("event_id", evt.ID),
		)
	}

	for _, eventType := range []string{
		"message.created",
		"message.updated",
		"card.moved",
		"channel.created",
		"user.joined",
	} {
		s.receiver.Register(eventType, logEvent)
	}
}

// Start starts the server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errChan := make(chan error, 1)

	go func() {
		logger.Info("Starting server",
			zap.String("address", addr),
			zap.Strings("providers", s.auth.Registry().Names()),
			zap.String("webhook_secret", config.MaskSecret(s.config.Webhook.SigningSecret)),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// Module provides the server dependencies
var Module = fx.Module("server",
	fx.Provide(
		NewServer,
	),
)
