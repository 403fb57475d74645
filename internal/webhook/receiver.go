// Package webhook validates inbound webhook deliveries and dispatches them
// by event type. A delivery moves through
// Received -> (ChallengeResponse | SignatureRejected | Parsed -> Dispatched -> Acknowledged);
// the receiver never retries, redelivery is the sending provider's concern.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/logger"
	"github.com/chatdeck/chatdeck/internal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Event is one parsed webhook delivery. Payload is the raw request body;
// non-JSON bodies are carried opaquely with an empty Type.
type Event struct {
	Provider string
	Type     string
	ID       string
	Payload  json.RawMessage
}

// HandlerFunc processes one dispatched event.
type HandlerFunc func(ctx context.Context, evt Event)

// Receiver validates and dispatches webhook deliveries.
type Receiver struct {
	secret string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	seen *seenCache
}

// NewReceiver creates a webhook receiver. With an empty signing secret,
// signature verification is skipped entirely.
func NewReceiver(cfg *config.Config) *Receiver {
	return &Receiver{
		secret:   cfg.Webhook.SigningSecret,
		handlers: make(map[string]HandlerFunc),
		seen:     newSeenCache(1000),
	}
}

// Register installs the handler for an event type. Later registrations for
// the same type replace earlier ones.
func (rc *Receiver) Register(eventType string, h HandlerFunc) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.handlers[eventType] = h
}

// HandleChallenge handles GET deliveries: endpoint-ownership verification.
func (rc *Receiver) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if challenge := challengeFromQuery(r); challenge != "" {
		writeChallenge(w, challenge)
		return
	}
	utils.WriteError(w, "validation_error", "challenge parameter is required", http.StatusBadRequest)
}

// HandleDelivery handles POST deliveries. The challenge handshake is honored
// before any signature check; everything else must carry a valid signature
// when a secret is configured.
func (rc *Receiver) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteError(w, "validation_error", "unable to read body", http.StatusBadRequest)
		return
	}

	var envelope struct {
		Challenge string `json:"challenge"`
		Event     string `json:"event"`
		EventID   string `json:"event_id"`
	}
	parsed := json.Unmarshal(body, &envelope) == nil

	if challenge := challengeFromQuery(r); challenge != "" {
		writeChallenge(w, challenge)
		return
	}
	if parsed && envelope.Challenge != "" {
		writeChallenge(w, envelope.Challenge)
		return
	}

	// Signature verification operates on the raw body: re-serialized JSON is
	// not byte-for-byte stable.
	if rc.secret != "" {
		signature := r.Header.Get("X-" + provider + "-Signature")
		if !verifySignature(rc.secret, body, signature) {
			logger.Warn("webhook signature rejected", zap.String("provider", provider))
			utils.WriteError(w, "unauthorized", "invalid webhook signature", http.StatusUnauthorized)
			return
		}
	}

	evt := Event{Provider: provider, Payload: body}
	if parsed {
		evt.Type = envelope.Event
		evt.ID = envelope.EventID
	}

	if evt.ID != "" && !rc.seen.record(provider+":"+evt.ID) {
		logger.Debug("duplicate webhook delivery",
			zap.String("provider", provider),
			zap.String("event_id", evt.ID),
		)
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	rc.dispatch(r.Context(), evt)
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dispatch routes the event to its registered handler. Unrecognized event
// types are logged and acknowledged; rejecting them only causes redelivery
// storms.
func (rc *Receiver) dispatch(ctx context.Context, evt Event) {
	rc.mu.RLock()
	handler, ok := rc.handlers[evt.Type]
	rc.mu.RUnlock()

	if !ok {
		logger.Info("unhandled webhook event",
			zap.String("provider", evt.Provider),
			zap.String("event", evt.Type),
		)
		return
	}
	handler(ctx, evt)
}

func verifySignature(secret string, body []byte, header string) bool {
	value, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	supplied, err := hex.DecodeString(value)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), supplied)
}

func challengeFromQuery(r *http.Request) string {
	if v := r.URL.Query().Get("challenge"); v != "" {
		return v
	}
	return r.URL.Query().Get("hub.challenge")
}

func writeChallenge(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		logger.Error("failed to write challenge response", zap.Error(err))
	}
}

// seenCache is a bounded FIFO set of delivery ids, evicting oldest first.
type seenCache struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	max   int
}

func newSeenCache(max int) *seenCache {
	return &seenCache{ids: make(map[string]struct{}), max: max}
}

// record returns false if the id was already present.
func (c *seenCache) record(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return false
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.ids, oldest)
	}
	return true
}
