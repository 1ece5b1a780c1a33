package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/store/sqlite"
)

var testLogger = slog.New(slog.DiscardHandler)

type testEnv struct {
	docs    *store.Documents
	feed    *sse.Manager
	backend *sqlite.Store
}

// stepClock advances one second per call so inserts are strictly ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), testLogger)
	require.NoError(t, err)

	feed := sse.NewManager(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go feed.Start(ctx)

	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	docs := store.NewDocuments(backend, feed, testLogger, store.WithClock(clock.Now))

	t.Cleanup(func() {
		cancel()
		_ = feed.Shutdown(context.Background())
		_ = backend.Close()
	})
	return &testEnv{docs: docs, feed: feed, backend: backend}
}

func (e *testEnv) newRepository() *PromptRepository {
	return NewPromptRepository(e.docs, RetryPolicy{Attempts: 2, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, testLogger)
}

// countingDocs counts store writes made through it.
type countingDocs struct {
	*store.Documents

	mu      sync.Mutex
	inserts int
	deletes int
}

func (c *countingDocs) InsertPrompt(ctx context.Context, doc store.PromptDocument) (string, error) {
	c.mu.Lock()
	c.inserts++
	c.mu.Unlock()
	return c.Documents.InsertPrompt(ctx, doc)
}

func (c *countingDocs) DeletePrompt(ctx context.Context, id string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.Documents.DeletePrompt(ctx, id)
}

func (c *countingDocs) counts() (inserts, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts, c.deletes
}

// recorder collects repository callbacks.
type recorder struct {
	mu        sync.Mutex
	snapshots [][]*domain.Prompt
	errs      []error
}

func (r *recorder) onSnapshot(prompts []*domain.Prompt) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, prompts)
	r.mu.Unlock()
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) last() []*domain.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func texts(prompts []*domain.Prompt) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = p.Text
	}
	return out
}

func ids(prompts []*domain.Prompt) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = p.ID
	}
	return out
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
