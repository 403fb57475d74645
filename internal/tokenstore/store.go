// Package tokenstore manages short-lived internal bearer tokens, used to
// protect the statistics and slash-command endpoints independently of any
// provider credential.
package tokenstore

import (
	"strings"
	"sync"
	"time"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/google/uuid"
)

// TTL is how long an issued token stays valid.
const TTL = time.Hour

// Info is the metadata recorded for an issued token.
type Info struct {
	ClientID  string
	CreatedAt time.Time
}

// Store issues and validates internal bearer tokens. Expiry is lazy: an
// expired entry is evicted the first time Validate sees it. The store is an
// interface so a shared external cache can replace the in-memory map without
// touching call sites.
type Store interface {
	Issue(clientID string) string
	Validate(token string) (*Info, error)
	Invalidate(token string)
}

// MemoryStore is the process-local Store implementation.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Info
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]Info),
		now:    time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Issue creates a token for a client id. Multiple live tokens per client id
// are permitted.
func (s *MemoryStore) Issue(clientID string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = Info{ClientID: clientID, CreatedAt: s.now()}
	return token
}

// Validate returns the token's metadata if it is still valid. A token is
// valid strictly less than TTL after issuance; at or past the deadline the
// entry is evicted and ErrTokenNotFound is returned.
func (s *MemoryStore) Validate(token string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.tokens[token]
	if !ok {
		return nil, apperr.ErrTokenNotFound
	}
	if s.now().Sub(info.CreatedAt) >= TTL {
		delete(s.tokens, token)
		return nil, apperr.ErrTokenNotFound
	}
	return &info, nil
}

// Invalidate removes a token.
func (s *MemoryStore) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Len reports how many entries the store currently holds, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
