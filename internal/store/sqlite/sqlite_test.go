package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/store"
	"github.com/hatago/hatago/internal/store/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("new test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpstreamStateSaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := store.UpstreamState{
		ServerID:            "github",
		LastStartedAt:       time.Now().UTC().Truncate(time.Second),
		RestartCount:        2,
		DiscoveredToolNames: []string{"create_issue", "list_prs"},
	}

	if err := db.SaveUpstreamState(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.LoadUpstreamState(ctx, "github")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RestartCount != 2 {
		t.Fatalf("restart count = %d, want 2", got.RestartCount)
	}
	if !got.LastStartedAt.Equal(s.LastStartedAt) {
		t.Fatalf("last started at = %v, want %v", got.LastStartedAt, s.LastStartedAt)
	}
	if len(got.DiscoveredToolNames) != 2 || got.DiscoveredToolNames[1] != "list_prs" {
		t.Fatalf("tool names = %v", got.DiscoveredToolNames)
	}
}

func TestUpstreamStateUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SaveUpstreamState(ctx, store.UpstreamState{ServerID: "github", RestartCount: 1}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := db.SaveUpstreamState(ctx, store.UpstreamState{ServerID: "github", RestartCount: 5}); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	got, err := db.LoadUpstreamState(ctx, "github")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RestartCount != 5 {
		t.Fatalf("restart count = %d, want 5 (upsert should overwrite)", got.RestartCount)
	}
}

func TestUpstreamStateNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.LoadUpstreamState(ctx, "nope")
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
