// Package store is the optional persisted-state collaborator spec §6
// describes: a narrow per-upstream lifecycle record, consulted only for
// display at startup (the hub always re-discovers capabilities by
// handshake). Grounded on the teacher's internal/store/store.go
// composite-interface shape and internal/store/sqlite's migrate-on-open
// idiom, narrowed from the teacher's nine-table composite interface down
// to the single table this spec's persistence note describes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by LoadUpstreamState when no record exists yet
// for the given server ID (e.g. its first-ever activation).
var ErrNotFound = errors.New("store: not found")

// UpstreamState is the per-upstream lifecycle record spec §6 describes.
// It is display-only: the hub never seeds registry or supervisor state
// from it, only shows it to an operator before the real handshake runs.
type UpstreamState struct {
	ServerID            string
	LastStartedAt       time.Time
	LastStoppedAt       time.Time
	LastFailureAt       time.Time
	LastFailureReason   string
	RestartCount        int
	DiscoveredToolNames []string
}

// Store is the narrow persistence interface the supervisor writes
// through. Implementations: sqlite-backed (New) and in-memory (NewMemory,
// the default when no store is configured).
type Store interface {
	SaveUpstreamState(ctx context.Context, s UpstreamState) error
	LoadUpstreamState(ctx context.Context, serverID string) (UpstreamState, error)
	Close() error
}
