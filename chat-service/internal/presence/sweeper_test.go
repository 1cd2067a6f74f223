package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-community/pkg/database"
)

type fakeSource []hub.ClientRooms

func (f fakeSource) Snapshot() []hub.ClientRooms { return f }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTracker(t *testing.T) (*Tracker, *clock) {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	t.Cleanup(func() { database.Close(db) })

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(repository.NewGormPresenceRepository(db), time.Second).WithClock(clk.Now), clk
}

func TestTracker_OnlineOfflineByConnection(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "42", "alice", "c1"))
	require.NoError(t, tr.MarkOnline(ctx, "42", "alice", "c2"))

	users, err := tr.Online(ctx, "42")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "c2", users[0].ConnectionID)

	removed, err := tr.MarkOffline(ctx, "42", "alice", "c1")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = tr.MarkOffline(ctx, "42", "alice", "c2")
	require.NoError(t, err)
	assert.True(t, removed)

	users, err = tr.Online(ctx, "42")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestSweeper_RenewsLiveConnectionsBeforeSweeping(t *testing.T) {
	tr, clk := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "42", "alice", "c1"))
	require.NoError(t, tr.MarkOnline(ctx, "42", "ghost", "dead"))
	require.NoError(t, tr.MarkOnline(ctx, "7", "alice", "c1"))

	clk.t = clk.t.Add(10 * time.Minute)
	source := fakeSource{{ConnectionID: "c1", UserID: "alice", Rooms: []string{"42", "7"}}}
	s := NewSweeper(tr, source, time.Minute, 5*time.Minute)

	assert.Equal(t, int64(1), s.Tick(ctx))

	users, err := tr.Online(ctx, "42")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserID)

	users, err = tr.Online(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSweeper_DoesNotRestoreLeftPresence(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkOnline(ctx, "42", "alice", "c1"))
	source := fakeSource{{ConnectionID: "c1", UserID: "alice", Rooms: []string{"42"}}}

	// The leave lands after the snapshot was taken.
	removed, err := tr.MarkOffline(ctx, "42", "alice", "c1")
	require.NoError(t, err)
	require.True(t, removed)

	NewSweeper(tr, source, time.Minute, 5*time.Minute).Tick(ctx)

	users, err := tr.Online(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestSweeper_ThresholdBoundary(t *testing.T) {
	tr, clk := newTracker(t)
	ctx := context.Background()
	start := clk.t

	require.NoError(t, tr.MarkOnline(ctx, "42", "old", "c1"))
	clk.t = start.Add(time.Second)
	require.NoError(t, tr.MarkOnline(ctx, "42", "edge", "c2"))

	// edge is exactly at the threshold, old is one second past it.
	clk.t = start.Add(time.Second + 300*time.Second)
	s := NewSweeper(tr, nil, time.Minute, 300*time.Second)
	assert.Equal(t, int64(1), s.Tick(ctx))

	users, err := tr.Online(ctx, "42")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "edge", users[0].UserID)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	tr, _ := newTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(tr, nil, 10*time.Millisecond, time.Minute).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
