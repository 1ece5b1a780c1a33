package badgerdb

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, owner string, at time.Time) *store.Record {
	return &store.Record{ID: id, Data: store.PromptDocument{Text: "text " + id, Tags: []string{"t"}, OwnerID: owner, CreatedAt: at}}
}

func TestPromptRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertPromptRecord(ctx, record("prm-1", "usr-a", t1)))
	require.NoError(t, s.InsertPromptRecord(ctx, record("prm-2", "usr-a", t1.Add(time.Second))))
	require.NoError(t, s.InsertPromptRecord(ctx, record("prm-3", "usr-a", t1)))
	require.NoError(t, s.InsertPromptRecord(ctx, record("prm-4", "usr-b", t1.Add(time.Hour))))

	err := s.InsertPromptRecord(ctx, record("prm-1", "usr-a", t1))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	recs, err := s.ListPromptRecords(ctx, "usr-a")
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"prm-2", "prm-3", "prm-1"}, ids)

	got, err := s.GetPromptRecord(ctx, "prm-4")
	require.NoError(t, err)
	assert.Equal(t, "usr-b", got.Data.OwnerID)
	assert.True(t, got.Data.CreatedAt.Equal(t1.Add(time.Hour)))

	n, err := s.CountPromptRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, err := s.ListAllPromptRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, "prm-4", all[0].ID)
}

func TestDeletePromptRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPromptRecord(ctx, record("prm-1", "usr-a", time.Now())))
	require.NoError(t, s.DeletePromptRecord(ctx, "prm-1"))

	_, err := s.GetPromptRecord(ctx, "prm-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeletePromptRecord(ctx, "prm-1"), store.ErrNotFound)

	recs, err := s.ListPromptRecords(ctx, "usr-a")
	require.NoError(t, err)
	assert.Empty(t, recs, "owner index entry must be removed")
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &domain.User{ID: "usr-1", Email: "Ada@Example.com", PasswordHash: "h", DisplayName: "Ada"}
	u.InitTimestamps()
	require.NoError(t, s.CreateUser(ctx, u))

	dup := &domain.User{ID: "usr-2", Email: "ada@example.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)

	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "usr-1", got.ID)
	assert.Equal(t, "h", got.PasswordHash)

	_, err = s.GetUser(ctx, "usr-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPing(t *testing.T) {
	s, err := Open("", slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrClosed)
}
