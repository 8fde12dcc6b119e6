// Package sqlite is the durable Store implementation spec §6's optional
// persistence note calls for. Grounded on the teacher's
// internal/store/sqlite package: same WAL-mode DSN, same
// single-connection pragmatic choice (SQLite serializes writers anyway),
// same embed-and-apply migration runner. Narrowed from the teacher's
// nine-table schema down to the single upstream_state table this hub
// persists.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hatago/hatago/internal/store"
)

var _ store.Store = (*DB)(nil)

// DB is the SQLite-backed Store implementation.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path and applies any pending
// migrations.
func New(ctx context.Context, path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{db: db}, nil
}

// SaveUpstreamState upserts the lifecycle record for a server.
func (d *DB) SaveUpstreamState(ctx context.Context, s store.UpstreamState) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO upstream_state (
			server_id, last_started_at, last_stopped_at, last_failure_at,
			last_failure_reason, restart_count, discovered_tool_names
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			last_started_at       = excluded.last_started_at,
			last_stopped_at       = excluded.last_stopped_at,
			last_failure_at       = excluded.last_failure_at,
			last_failure_reason   = excluded.last_failure_reason,
			restart_count         = excluded.restart_count,
			discovered_tool_names = excluded.discovered_tool_names
	`,
		s.ServerID,
		formatTime(s.LastStartedAt),
		formatTime(s.LastStoppedAt),
		formatTime(s.LastFailureAt),
		s.LastFailureReason,
		s.RestartCount,
		marshalToolNames(s.DiscoveredToolNames),
	)
	if err != nil {
		return fmt.Errorf("save upstream state: %w", err)
	}
	return nil
}

// LoadUpstreamState returns the last-persisted record for serverID, or
// store.ErrNotFound if none exists.
func (d *DB) LoadUpstreamState(ctx context.Context, serverID string) (store.UpstreamState, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT server_id, last_started_at, last_stopped_at, last_failure_at,
		       last_failure_reason, restart_count, discovered_tool_names
		FROM upstream_state WHERE server_id = ?
	`, serverID)

	var (
		s                                                string
		lastStarted, lastStopped, lastFailure, toolNames string
		reason                                           string
		restarts                                         int
	)
	err := row.Scan(&s, &lastStarted, &lastStopped, &lastFailure, &reason, &restarts, &toolNames)
	if err == sql.ErrNoRows {
		return store.UpstreamState{}, store.ErrNotFound
	}
	if err != nil {
		return store.UpstreamState{}, fmt.Errorf("load upstream state: %w", err)
	}

	return store.UpstreamState{
		ServerID:            s,
		LastStartedAt:       parseTime(lastStarted),
		LastStoppedAt:       parseTime(lastStopped),
		LastFailureAt:       parseTime(lastFailure),
		LastFailureReason:   reason,
		RestartCount:        restarts,
		DiscoveredToolNames: unmarshalToolNames(toolNames),
	}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
