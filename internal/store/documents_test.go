package store_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/store/sqlite"
)

type testEnv struct {
	docs    *store.Documents
	feed    *sse.Manager
	backend *sqlite.Store
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so inserts get distinct timestamps.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)

	feed := sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go feed.Start(ctx)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	docs := store.NewDocuments(backend, feed, logger, store.WithClock(clock.Now))

	t.Cleanup(func() {
		cancel()
		_ = feed.Shutdown(context.Background())
		_ = backend.Close()
	})
	return &testEnv{docs: docs, feed: feed, backend: backend, clock: clock}
}

// snapshotRecorder collects snapshots delivered to a subscription.
type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]string
	errs      []error
}

func (r *snapshotRecorder) onSnapshot(recs []*store.Record) {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	r.mu.Lock()
	r.snapshots = append(r.snapshots, ids)
	r.mu.Unlock()
}

func (r *snapshotRecorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *snapshotRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *snapshotRecorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestInsertPrompt_AssignsIDAndTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	callerTime := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := env.docs.InsertPrompt(ctx, store.PromptDocument{
		Text:      "Summarise this",
		Tags:      []string{"ai"},
		OwnerID:   "usr-a",
		CreatedAt: callerTime,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^prm-`, id)

	rec, err := env.docs.GetPrompt(ctx, id)
	require.NoError(t, err)
	assert.False(t, rec.Data.CreatedAt.Equal(callerTime), "server assigns createdAt")
	assert.Equal(t, "usr-a", rec.Prompt().OwnerID)
}

func TestInsertPrompt_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.docs.InsertPrompt(context.Background(), store.PromptDocument{Text: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestDeletePrompt_Unknown(t *testing.T) {
	env := newTestEnv(t)

	err := env.docs.DeletePrompt(context.Background(), "prm-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWatchPrompts_InitialSnapshotAndUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id1, err := env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "one", OwnerID: "usr-a"})
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	sub, err := env.docs.WatchPrompts("usr-a", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{id1}, rec.last())

	id2, err := env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "two", OwnerID: "usr-a"})
	require.NoError(t, err)

	// Newest first.
	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 2 && last[0] == id2 && last[1] == id1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.docs.DeletePrompt(ctx, id2))
	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 1 && last[0] == id1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, rec.errCount())
}

func TestWatchPrompts_OwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := &snapshotRecorder{}
	sub, err := env.docs.WatchPrompts("usr-a", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "not mine", OwnerID: "usr-b"})
	require.NoError(t, err)
	mine, err := env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "mine", OwnerID: "usr-a"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 1 && last[0] == mine
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchPrompts_BroadcastChangeRequeries(t *testing.T) {
	env := newTestEnv(t)

	rec := &snapshotRecorder{}
	sub, err := env.docs.WatchPrompts("usr-a", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Simulate another process writing directly to the backend.
	require.NoError(t, env.backend.InsertPromptRecord(context.Background(), &store.Record{
		ID:   "prm-external",
		Data: store.PromptDocument{Text: "from cli", OwnerID: "usr-a", CreatedAt: env.clock.Now()},
	}))
	env.feed.Publish(store.Change{Op: store.ChangeExternal})

	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 1 && last[0] == "prm-external"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscription_NoSnapshotAfterUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var delivered atomic.Int32
	var stopped atomic.Bool
	var late atomic.Bool

	sub, err := env.docs.WatchPrompts("usr-a", func([]*store.Record) {
		if stopped.Load() {
			late.Store(true)
		}
		delivered.Add(1)
	}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return delivered.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	stopped.Store(true)
	sub.Unsubscribe()

	for range 5 {
		_, err := env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "x", OwnerID: "usr-a"})
		require.NoError(t, err)
	}

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription goroutine did not exit")
	}
	assert.False(t, late.Load(), "snapshot delivered after Unsubscribe returned")
	assert.Equal(t, 0, env.feed.ListenerCount())
}

func TestSubscription_FeedShutdownReportsError(t *testing.T) {
	env := newTestEnv(t)

	rec := &snapshotRecorder{}
	sub, err := env.docs.WatchPrompts("usr-a", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.feed.Shutdown(context.Background()))

	require.Eventually(t, func() bool { return rec.errCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.True(t, store.IsClosed(rec.errs[0]))
	rec.mu.Unlock()
	<-sub.Done()
}

func TestSubscription_QueryFailureReportsError(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.backend.Close())

	errCh := make(chan error, 1)
	sub, err := env.docs.WatchPrompts("usr-a", func([]*store.Record) {
		t.Error("no snapshot expected from a closed backend")
	}, func(err error) { errCh <- err })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected onError")
	}
}

func TestWatchPrompts_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.docs.WatchPrompts("", func([]*store.Record) {}, nil)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = env.docs.WatchPrompts("usr-a", nil, nil)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	fail    bool
}

func (r *recordingIndexer) IndexPrompt(_ context.Context, p *domain.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("index unavailable")
	}
	r.indexed = append(r.indexed, p.ID)
	return nil
}

func (r *recordingIndexer) DeletePrompt(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func TestSearchIndexerKeptInSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	idx := &recordingIndexer{}
	env.docs.SetSearchIndexer(idx)

	id, err := env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "x", OwnerID: "usr-a"})
	require.NoError(t, err)
	require.NoError(t, env.docs.DeletePrompt(ctx, id))

	assert.Equal(t, []string{id}, idx.indexed)
	assert.Equal(t, []string{id}, idx.deleted)

	// Index failures never fail the write.
	idx.fail = true
	_, err = env.docs.InsertPrompt(ctx, store.PromptDocument{Text: "y", OwnerID: "usr-a"})
	assert.NoError(t, err)
}
