package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/store"
)

func TestPromptRepository_SnapshotNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	ctx := context.Background()

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()

	require.Eventually(t, func() bool { return rec.snapshotCount() >= 1 }, waitFor, tick)
	assert.Empty(t, rec.last())

	require.NoError(t, repo.Create(ctx, "usr_a", "first prompt", "ai"))
	require.NoError(t, repo.Create(ctx, "usr_a", "second prompt", "react, css , "))

	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, waitFor, tick)
	got := rec.last()
	assert.Equal(t, []string{"second prompt", "first prompt"}, texts(got))
	assert.Equal(t, []string{"react", "css", ""}, got[0].Tags)
	assert.Equal(t, "usr_a", got[0].OwnerID)
	assert.NotEmpty(t, got[0].ID)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestPromptRepository_SubscribeDeliversFirstSnapshotBeforeReturning(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	require.NoError(t, repo.Create(context.Background(), "usr_a", "already there", ""))

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()

	assert.Equal(t, 1, rec.snapshotCount())
	assert.Equal(t, []string{"already there"}, texts(rec.last()))

	view := NewLiveView(env.newRepository(), testLogger)
	require.NoError(t, view.Attach("usr_a"))
	defer view.Detach()
	assert.True(t, view.Loaded())
	assert.Len(t, view.Prompts(), 1)
}

func TestPromptRepository_OwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "usr_b", "not mine", ""))

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()

	require.NoError(t, repo.Create(ctx, "usr_a", "mine", ""))
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"mine"}, texts(rec.last()))
}

func TestPromptRepository_CreateEmptyTextSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	docs := &countingDocs{Documents: env.docs}
	repo := NewPromptRepository(docs, RetryPolicy{}, testLogger)

	for _, text := range []string{"", "   ", "\n\t"} {
		err := repo.Create(context.Background(), "usr_a", text, "ai")
		require.Error(t, err)
		assert.Equal(t, domainerrors.CodeValidation, domainerrors.CodeOf(err))
	}

	inserts, _ := docs.counts()
	assert.Zero(t, inserts)
}

func TestPromptRepository_CreateRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()

	err := repo.Create(context.Background(), "", "text", "")
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
}

func TestPromptRepository_RemoveUnknown(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()

	err := repo.Remove(context.Background(), "prm_missing")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPromptRepository_RemoveArrivesWithNextSnapshot(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "usr_a", "one", ""))
	require.NoError(t, repo.Create(ctx, "usr_a", "two", ""))

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()
	require.Eventually(t, func() bool { return len(rec.last()) == 2 }, waitFor, tick)

	before := rec.snapshotCount()
	require.NoError(t, repo.Remove(ctx, rec.last()[0].ID))

	require.Eventually(t, func() bool { return rec.snapshotCount() > before }, waitFor, tick)
	assert.Equal(t, []string{"one"}, texts(rec.last()))
}

func TestPromptRepository_UnsubscribeStopsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	ctx := context.Background()

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	require.Eventually(t, func() bool { return rec.snapshotCount() == 1 }, waitFor, tick)

	repo.Unsubscribe()
	repo.Unsubscribe()

	require.NoError(t, repo.Create(ctx, "usr_a", "after", ""))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.snapshotCount())
	assert.Eventually(t, func() bool { return env.feed.ListenerCount() == 0 }, waitFor, tick)
}

func TestPromptRepository_SubscribeReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	ctx := context.Background()

	first := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", first.onSnapshot, first.onError))
	require.Eventually(t, func() bool { return first.snapshotCount() == 1 }, waitFor, tick)

	second := &recorder{}
	require.NoError(t, repo.Subscribe("usr_b", second.onSnapshot, second.onError))
	defer repo.Unsubscribe()

	require.NoError(t, repo.Create(ctx, "usr_a", "for a", ""))
	require.NoError(t, repo.Create(ctx, "usr_b", "for b", ""))

	require.Eventually(t, func() bool { return len(second.last()) == 1 }, waitFor, tick)
	assert.Equal(t, 1, first.snapshotCount())
	assert.Eventually(t, func() bool { return env.feed.ListenerCount() == 1 }, waitFor, tick)
}

func TestPromptRepository_ResubscribeThenGiveUp(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()
	require.Eventually(t, func() bool { return rec.snapshotCount() == 1 }, waitFor, tick)

	// Every query now fails, so the live subscription and each retry fail.
	require.NoError(t, env.backend.Close())
	env.feed.Publish(store.Change{Op: store.ChangeExternal, At: time.Now()})

	// lost + one report per attempt + final give-up.
	require.Eventually(t, func() bool { return len(rec.errors()) == 4 }, waitFor, tick)
	errs := rec.errors()
	for _, err := range errs {
		assert.Equal(t, domainerrors.CodeUnavailable, domainerrors.CodeOf(err))
	}
	assert.Contains(t, errs[3].Error(), "after 2 attempts")
	assert.Equal(t, 1, rec.snapshotCount())
}

func TestPromptRepository_FeedShutdownDoesNotRetry(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()

	rec := &recorder{}
	require.NoError(t, repo.Subscribe("usr_a", rec.onSnapshot, rec.onError))
	defer repo.Unsubscribe()
	require.Eventually(t, func() bool { return rec.snapshotCount() == 1 }, waitFor, tick)

	require.NoError(t, env.feed.Shutdown(context.Background()))

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.errors(), 1)
	assert.ErrorIs(t, rec.errors()[0], store.ErrClosed)
}

func TestPromptRepository_SubscribeFailsWhenFeedClosed(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	require.NoError(t, env.feed.Shutdown(context.Background()))

	rec := &recorder{}
	err := repo.Subscribe("usr_a", rec.onSnapshot, rec.onError)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeUnavailable, domainerrors.CodeOf(err))
}

type recordingObserver struct {
	ops []string
}

func (o *recordingObserver) CommandCompleted(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.ops = append(o.ops, op+":"+status)
}

func TestPromptRepository_CommandObserver(t *testing.T) {
	env := newTestEnv(t)
	repo := env.newRepository()
	obs := &recordingObserver{}
	repo.SetCommandObserver(obs)

	_ = repo.Create(context.Background(), "usr_a", "x", "")
	_ = repo.Create(context.Background(), "usr_a", "", "")
	_ = repo.Remove(context.Background(), "prm_missing")

	assert.Equal(t, []string{"create:ok", "create:error", "remove:error"}, obs.ops)
}
