package store

import (
	"context"
	"time"

	"github.com/promptvault/promptvault-server/internal/domain"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Backend is a storage engine for users and prompt records.
// ListPromptRecords must return records ordered by CreatedAt descending,
// ties broken by ID descending.
type Backend interface {
	UserStore

	InsertPromptRecord(ctx context.Context, rec *Record) error
	GetPromptRecord(ctx context.Context, id string) (*Record, error)
	DeletePromptRecord(ctx context.Context, id string) error
	ListPromptRecords(ctx context.Context, ownerID string) ([]*Record, error)
	ListAllPromptRecords(ctx context.Context) ([]*Record, error)
	CountPromptRecords(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// ChangeOp describes what happened to a document.
type ChangeOp string

// Change operations.
const (
	ChangeInsert ChangeOp = "insert"
	ChangeDelete ChangeOp = "delete"
	// ChangeExternal is published when another process wrote to the store.
	ChangeExternal ChangeOp = "external"
)

// Change notifies live queries that their result may be stale.
// An empty OwnerID reaches every listener.
type Change struct {
	Op         ChangeOp  `json:"op"`
	OwnerID    string    `json:"owner_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	At         time.Time `json:"at"`
}

// ChangeFeed fans changes out to owner-filtered listeners.
type ChangeFeed interface {
	Publish(change Change)
	Listen(ownerID string) (ChangeListener, error)
}

// ChangeListener receives changes for one owner. Changes is closed when
// the feed shuts down.
type ChangeListener interface {
	Changes() <-chan Change
	Close()
}

// SearchIndexer is the interface for updating the search index.
// Store uses this to keep search in sync without depending on the search implementation.
type SearchIndexer interface {
	IndexPrompt(ctx context.Context, p *domain.Prompt) error
	DeletePrompt(ctx context.Context, id string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexPrompt is a no-op.
func (NoopSearchIndexer) IndexPrompt(context.Context, *domain.Prompt) error { return nil }

// DeletePrompt is a no-op.
func (NoopSearchIndexer) DeletePrompt(context.Context, string) error { return nil }

// Observer is notified about live query activity. The metrics collector
// implements it.
type Observer interface {
	SubscriptionOpened()
	SubscriptionClosed()
	SnapshotDelivered(size int)
}

// NoopObserver ignores all notifications.
type NoopObserver struct{}

func (NoopObserver) SubscriptionOpened()   {}
func (NoopObserver) SubscriptionClosed()   {}
func (NoopObserver) SnapshotDelivered(int) {}
