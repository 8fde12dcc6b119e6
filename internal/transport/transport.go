// Package transport implements the uniform capability the supervisor
// drives each upstream through: send, onMessage, onError, close. Three
// concrete kinds exist: stdio (child process), HTTP (streamable), and
// SSE, per spec §4.4.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotStarted is returned by Send before the transport has completed
// its startup handshake.
var ErrNotStarted = errors.New("transport: not started")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// TransportError wraps a transport-level failure (connect failed, closed
// mid-request, malformed framing, child exited) with process exit detail
// where applicable.
type TransportError struct {
	Err    error
	Code   int
	Signal string
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// MessageHandler is invoked for every inbound JSON-RPC message (response
// or notification) in the order the transport produced them.
type MessageHandler func(msg json.RawMessage)

// ErrorHandler is invoked once when the transport fails; after it fires
// the transport is considered closed.
type ErrorHandler func(err error)

// Transport is the capability interface all three upstream kinds satisfy.
type Transport interface {
	// Start establishes the connection (spawns the child / dials HTTP /
	// opens the SSE stream) within ctx's deadline.
	Start(ctx context.Context) error
	// Send writes one JSON-RPC message (request or notification).
	Send(ctx context.Context, msg json.RawMessage) error
	OnMessage(h MessageHandler)
	OnError(h ErrorHandler)
	Close() error
}
