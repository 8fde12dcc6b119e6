package router

import (
	"encoding/json"
	"sync"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/session"
)

// tokenBroker tracks in-flight calls that requested progress reporting,
// mapping the upstream token the router minted back to the owning
// session and the client-facing public token, so inbound
// notifications/progress frames from the upstream can be rewritten
// before being queued for delivery downstream. Per spec §4.3/§9's
// progress-token-bridging requirement.
type tokenBroker struct {
	mu      sync.RWMutex
	entries map[string]brokerEntry
}

type brokerEntry struct {
	serverID    string
	session     *session.Session
	publicToken json.RawMessage
}

func newTokenBroker() *tokenBroker {
	return &tokenBroker{entries: make(map[string]brokerEntry)}
}

// register mints a fresh upstream token for sess's publicToken, bound to
// serverID, and returns it for use as the outgoing progressToken.
func (b *tokenBroker) register(serverID string, sess *session.Session, publicToken json.RawMessage) string {
	upstreamToken := sess.MintProgressToken(serverID, "")
	b.mu.Lock()
	b.entries[upstreamToken] = brokerEntry{serverID: serverID, session: sess, publicToken: publicToken}
	b.mu.Unlock()
	return upstreamToken
}

func (b *tokenBroker) release(upstreamToken string) {
	if upstreamToken == "" {
		return
	}
	b.mu.Lock()
	entry, ok := b.entries[upstreamToken]
	delete(b.entries, upstreamToken)
	b.mu.Unlock()
	if ok {
		entry.session.ReleaseProgressToken(upstreamToken)
	}
}

func (b *tokenBroker) lookup(upstreamToken string) (brokerEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[upstreamToken]
	return e, ok
}

// notificationHandler returns the callback wired onto every upstream's
// OnNotification, translating notifications/progress frames from the
// upstream token namespace back to the client-facing public token
// before pushing them onto the owning session's lossy progress queue.
// Every other upstream-originated notification (list_changed, etc.) is
// dropped here; the hub subscribes to the registry's own bus for those.
func (r *Router) notificationHandler(serverID string) func(raw json.RawMessage) {
	return func(raw json.RawMessage) {
		var env struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(raw, &env); err != nil || env.Method != "notifications/progress" {
			return
		}

		var params hubtypes.ProgressNotificationParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return
		}

		var upstreamToken string
		if err := json.Unmarshal(params.ProgressToken, &upstreamToken); err != nil {
			return
		}

		entry, ok := r.tokens.lookup(upstreamToken)
		if !ok || entry.serverID != serverID {
			return
		}

		params.ProgressToken = entry.publicToken
		outParams, err := json.Marshal(params)
		if err != nil {
			return
		}
		outRaw, err := json.Marshal(hubtypes.Request{
			JSONRPC: hubtypes.JSONRPCVersion,
			Method:  "notifications/progress",
			Params:  outParams,
		})
		if err != nil {
			return
		}

		entry.session.ProgressQueue().Push(string(entry.publicToken), outRaw)
	}
}
