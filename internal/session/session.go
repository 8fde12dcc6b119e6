// Package session owns per-connection state: identity, the public-to-
// upstream progress token map, a bounded concurrency gate, and the lossy
// progress notification queue. Grounded on the identity half of
// gateway/session.go's sessionManager (google/uuid session IDs); the
// workspace-ancestor resolution half of that file has no analogue here
// (there is no multi-tenant workspace concept in this hub) and is not
// carried forward.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultMaxInFlight bounds the number of concurrent tools/call (and
// friends) requests a single session may have outstanding, per spec
// §9's backpressure note.
const DefaultMaxInFlight = 64

// UpstreamToken identifies where a minted public progress token maps to:
// which upstream, and what token that upstream itself expects back on
// notifications/cancelled or further correlation.
type UpstreamToken struct {
	ServerID      string
	UpstreamToken string
}

// Session is one client connection's state. Safe for concurrent use.
type Session struct {
	ID         string
	ClientName string
	ClientInfo string

	tokenSeq atomic.Int64

	mu     sync.RWMutex
	tokens map[string]UpstreamToken

	sem   chan struct{}
	queue *ProgressQueue
}

// New creates a session with the default concurrency gate and progress
// queue sizing.
func New(clientName, clientInfo string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		ClientName: clientName,
		ClientInfo: clientInfo,
		tokens:     make(map[string]UpstreamToken),
		sem:        make(chan struct{}, DefaultMaxInFlight),
		queue:      NewProgressQueue(DefaultProgressQueueCapacity),
	}
}

// Acquire blocks until a concurrency slot is free or ctx is done.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MintProgressToken allocates a fresh public progress token for a call
// bound to serverID/upstreamToken, so the hub can substitute it into
// outbound notifications/progress frames without leaking upstream
// identity to the client.
func (s *Session) MintProgressToken(serverID, upstreamToken string) string {
	public := fmt.Sprintf("%s-%d", s.ID[:8], s.tokenSeq.Add(1))
	s.mu.Lock()
	s.tokens[public] = UpstreamToken{ServerID: serverID, UpstreamToken: upstreamToken}
	s.mu.Unlock()
	return public
}

// ResolveProgressToken maps a public token back to its upstream origin.
func (s *Session) ResolveProgressToken(public string) (UpstreamToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ut, ok := s.tokens[public]
	return ut, ok
}

// ReleaseProgressToken drops a token once its call has completed, per
// spec §9's "progress token map leakage" note: tokens must not
// accumulate for the lifetime of a long-lived session.
func (s *Session) ReleaseProgressToken(public string) {
	s.mu.Lock()
	delete(s.tokens, public)
	s.mu.Unlock()
}

// ProgressQueue returns this session's lossy outbound notification queue.
func (s *Session) ProgressQueue() *ProgressQueue { return s.queue }
