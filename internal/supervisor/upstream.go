package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hatago/hatago/internal/backoff"
	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/transport"
	"golang.org/x/sync/singleflight"
)

// TransportFactory builds a fresh, unstarted Transport for one
// activation attempt. A factory (rather than a single long-lived
// instance) is required because stdio transports cannot be restarted
// once their child process has exited.
type TransportFactory func() transport.Transport

// Config is the static description of one upstream MCP server, set at
// hub construction from the loaded hub configuration.
type Config struct {
	ServerID         string
	NewTransport     TransportFactory
	ActivationPolicy ActivationPolicy
	ConnectTimeout   time.Duration
	CallTimeout      time.Duration
	IdleTimeout      time.Duration // 0 disables idle shutdown
	MinLinger        time.Duration

	// MaxRestarts bounds the automatic COOLDOWN->ACTIVATING retry chain
	// after a failed activation attempt or an unexpected transport close.
	// Once restartCount reaches it,
	// the upstream settles in INACTIVE; manual activation still works.
	MaxRestarts int
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultCallTimeout    = 60 * time.Second
	defaultMaxRestarts    = 5
)

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = defaultMaxRestarts
	}
}

// Upstream drives one MCP server through the activation/idle/restart
// lifecycle and is the sole owner of its transport. Grounded on
// internal/downstream/instance.go's Instance, generalized from its
// queue-based Call API to singleflight-guarded activation plus a
// pending-request correlation map, and from six states to the spec's
// seven.
type Upstream struct {
	cfg      Config
	bus      *Bus
	reg      *registry.Registry
	backoff  *backoff.Policy
	onNotify func(raw json.RawMessage)

	activation singleflight.Group

	mu           sync.Mutex
	state        State
	tr           transport.Transport
	refCount     int
	restartCount int
	idleTimer    *time.Timer
	reqSeq       int64
	pending      map[string]chan rpcResult
}

type rpcResult struct {
	result json.RawMessage
	rpcErr *hubtypes.RPCError
}

// New creates an upstream in the INACTIVE state. bus and reg may be
// shared across every upstream the supervisor manages.
func New(cfg Config, bus *Bus, reg *registry.Registry) *Upstream {
	cfg.applyDefaults()
	if bus == nil {
		bus = NewBus()
	}
	return &Upstream{
		cfg:     cfg,
		bus:     bus,
		reg:     reg,
		backoff: backoff.NewPolicy(),
		state:   StateInactive,
		pending: make(map[string]chan rpcResult),
	}
}

// ServerID returns the upstream's configured identifier.
func (u *Upstream) ServerID() string { return u.cfg.ServerID }

// OnNotification registers the callback invoked for every inbound
// message carrying a method but no response correlation (progress,
// list_changed, and other server-to-client notifications). Must be
// called before the first Activate.
func (u *Upstream) OnNotification(fn func(raw json.RawMessage)) {
	u.mu.Lock()
	u.onNotify = fn
	u.mu.Unlock()
}

// State returns the current lifecycle state.
func (u *Upstream) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// RefCount returns the number of in-flight calls currently holding this
// upstream active.
func (u *Upstream) RefCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refCount
}

// transitionLocked moves the state machine to next, validating the edge
// against allowedEdges and publishing state:changed. Caller must hold
// u.mu.
func (u *Upstream) transitionLocked(next State) error {
	if !u.state.canTransitionTo(next) {
		return &errInvalidTransition{from: u.state, to: next}
	}
	prev := u.state
	u.state = next
	u.bus.Publish(Event{Name: EventStateChanged, ServerID: u.cfg.ServerID, Data: [2]State{prev, next}})
	return nil
}

func (u *Upstream) nextReqID() string {
	u.reqSeq++
	return fmt.Sprintf("%d", u.reqSeq)
}

// call sends a request and blocks for its correlated response, or ctx's
// expiry, whichever comes first.
func (u *Upstream) call(ctx context.Context, method string, params any) (json.RawMessage, *hubtypes.RPCError, error) {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal params: %w", err)
	}

	u.mu.Lock()
	id := u.nextReqID()
	ch := make(chan rpcResult, 1)
	u.pending[id] = ch
	tr := u.tr
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.pending, id)
		u.mu.Unlock()
	}()

	idRaw, _ := json.Marshal(id)
	req := hubtypes.Request{JSONRPC: hubtypes.JSONRPCVersion, ID: idRaw, Method: method, Params: paramsRaw}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	if tr == nil {
		return nil, nil, transport.ErrNotStarted
	}
	if err := tr.Send(ctx, raw); err != nil {
		return nil, nil, err
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		return res.result, res.rpcErr, nil
	}
}

// notify sends a one-way JSON-RPC notification (no response expected).
func (u *Upstream) notify(ctx context.Context, method string, params any) error {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req := hubtypes.Request{JSONRPC: hubtypes.JSONRPCVersion, Method: method, Params: paramsRaw}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}

	u.mu.Lock()
	tr := u.tr
	u.mu.Unlock()
	if tr == nil {
		return transport.ErrNotStarted
	}
	return tr.Send(ctx, raw)
}

// inboundEnvelope distinguishes a correlated response from a server-
// initiated request/notification without assuming which one a given
// transport frame is.
type inboundEnvelope struct {
	ID     json.RawMessage    `json:"id"`
	Method string             `json:"method"`
	Result json.RawMessage    `json:"result"`
	Error  *hubtypes.RPCError `json:"error"`
}

func (u *Upstream) handleMessage(raw json.RawMessage) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	if env.Method != "" {
		u.mu.Lock()
		fn := u.onNotify
		u.mu.Unlock()
		if fn != nil {
			fn(raw)
		}
		return
	}

	if len(env.ID) == 0 {
		return
	}
	var id string
	if err := json.Unmarshal(env.ID, &id); err != nil {
		id = string(env.ID)
	}

	u.mu.Lock()
	ch, ok := u.pending[id]
	u.mu.Unlock()
	if !ok {
		return
	}
	ch <- rpcResult{result: env.Result, rpcErr: env.Error}
}

func (u *Upstream) handleTransportError(err error) {
	u.mu.Lock()
	state := u.state
	u.mu.Unlock()
	if state == StateStopping || state == StateInactive {
		return
	}
	u.fail(err)
}
