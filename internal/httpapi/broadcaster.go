package httpapi

import (
	"encoding/json"
	"sync"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/session"
)

// broadcaster implements hub.Notifier by fanning a debounced list_changed
// notification out to every currently streaming session's lossy
// ProgressQueue, the same queue notifications/progress frames already
// flow through. One instance is wired as the Hub's sole notifier for
// the lifetime of the HTTP surface (the stdio Server plays the
// equivalent role for the stdio surface).
type broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newBroadcaster() *broadcaster {
	return &broadcaster{sessions: make(map[string]*session.Session)}
}

// add registers sess to receive broadcast notifications, e.g. while an
// SSE stream for it is open.
func (b *broadcaster) add(sess *session.Session) {
	b.mu.Lock()
	b.sessions[sess.ID] = sess
	b.mu.Unlock()
}

func (b *broadcaster) remove(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Notify satisfies hub.Notifier, pushing method as a JSON-RPC
// notification frame onto every streaming session's queue.
func (b *broadcaster) Notify(method string, params any) error {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(hubtypes.Request{
		JSONRPC: hubtypes.JSONRPCVersion,
		Method:  method,
		Params:  paramsRaw,
	})
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sess := range b.sessions {
		sess.ProgressQueue().Push(method, frame)
	}
	return nil
}
