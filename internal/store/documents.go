// Package store implements the document store behind PromptVault: a
// storage Backend, a ChangeFeed and the owner-scoped live query built on
// top of them.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/promptvault/promptvault-server/internal/id"
)

// Documents is the document store used by the prompt repository.
type Documents struct {
	backend Backend
	feed    ChangeFeed
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	indexer  SearchIndexer
	observer Observer
}

// Option configures Documents.
type Option func(*Documents)

// WithClock overrides the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Documents) { d.now = now }
}

// WithObserver registers an observer for live query activity.
func WithObserver(o Observer) Option {
	return func(d *Documents) { d.observer = o }
}

// NewDocuments creates a document store over backend, publishing changes to feed.
func NewDocuments(backend Backend, feed ChangeFeed, logger *slog.Logger, opts ...Option) *Documents {
	d := &Documents{
		backend:  backend,
		feed:     feed,
		logger:   logger,
		now:      time.Now,
		indexer:  NoopSearchIndexer{},
		observer: NoopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetSearchIndexer sets the indexer kept in sync with writes.
// Set after construction to avoid a cycle with the search service.
func (d *Documents) SetSearchIndexer(indexer SearchIndexer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexer = indexer
}

// Backend exposes the underlying storage engine.
func (d *Documents) Backend() Backend {
	return d.backend
}

func (d *Documents) searchIndexer() SearchIndexer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.indexer
}

// InsertPrompt stores doc and returns the assigned id. The id and CreatedAt
// are assigned here; a CreatedAt set by the caller is ignored.
func (d *Documents) InsertPrompt(ctx context.Context, doc PromptDocument) (string, error) {
	if doc.OwnerID == "" {
		return "", ErrInvalidInput.WithMessage("owner is required")
	}

	promptID, err := id.Generate(id.PrefixPrompt)
	if err != nil {
		return "", fmt.Errorf("insert prompt: %w", err)
	}
	doc.CreatedAt = d.now().UTC()

	rec := &Record{ID: promptID, Data: doc}
	if err := d.backend.InsertPromptRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("insert prompt: %w", err)
	}

	d.feed.Publish(Change{Op: ChangeInsert, OwnerID: doc.OwnerID, DocumentID: promptID, At: doc.CreatedAt})

	if err := d.searchIndexer().IndexPrompt(ctx, rec.Prompt()); err != nil {
		d.logger.Warn("failed to index prompt", "prompt_id", promptID, "error", err)
	}

	d.logger.Debug("prompt inserted", "prompt_id", promptID, "owner_id", doc.OwnerID)
	return promptID, nil
}

// GetPrompt returns a single record.
func (d *Documents) GetPrompt(ctx context.Context, promptID string) (*Record, error) {
	return d.backend.GetPromptRecord(ctx, promptID)
}

// DeletePrompt removes a record by id. Ownership is not checked here.
func (d *Documents) DeletePrompt(ctx context.Context, promptID string) error {
	rec, err := d.backend.GetPromptRecord(ctx, promptID)
	if err != nil {
		return fmt.Errorf("delete prompt %s: %w", promptID, err)
	}
	if err := d.backend.DeletePromptRecord(ctx, promptID); err != nil {
		return fmt.Errorf("delete prompt %s: %w", promptID, err)
	}

	d.feed.Publish(Change{Op: ChangeDelete, OwnerID: rec.Data.OwnerID, DocumentID: promptID, At: d.now().UTC()})

	if err := d.searchIndexer().DeletePrompt(ctx, promptID); err != nil {
		d.logger.Warn("failed to remove prompt from index", "prompt_id", promptID, "error", err)
	}

	d.logger.Debug("prompt deleted", "prompt_id", promptID, "owner_id", rec.Data.OwnerID)
	return nil
}

// QueryPrompts returns the owner's records, newest first.
func (d *Documents) QueryPrompts(ctx context.Context, ownerID string) ([]*Record, error) {
	return d.backend.ListPromptRecords(ctx, ownerID)
}

// WatchPrompts opens a live query over the owner's prompts. onSnapshot
// receives the complete ordered result set once immediately and again after
// every change for the owner. If the query fails or the feed closes, onError
// is called once and the subscription ends.
//
// Callbacks run sequentially on a goroutine owned by the subscription.
func (d *Documents) WatchPrompts(ownerID string, onSnapshot func([]*Record), onError func(error)) (*Subscription, error) {
	if ownerID == "" {
		return nil, ErrInvalidInput.WithMessage("owner is required")
	}
	if onSnapshot == nil {
		return nil, ErrInvalidInput.WithMessage("snapshot callback is required")
	}

	listener, err := d.feed.Listen(ownerID)
	if err != nil {
		return nil, fmt.Errorf("watch prompts: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		ownerID:    ownerID,
		cancel:     cancel,
		done:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	d.observer.SubscriptionOpened()
	go func() {
		defer d.observer.SubscriptionClosed()
		sub.run(ctx, d, listener)
	}()

	return sub, nil
}

// Subscription is a handle on a live query.
type Subscription struct {
	ownerID    string
	cancel     context.CancelFunc
	done       chan struct{}
	onSnapshot func([]*Record)
	onError    func(error)

	mu      sync.Mutex
	stopped bool
	once    sync.Once
}

// OwnerID returns the owner the subscription is scoped to.
func (s *Subscription) OwnerID() string {
	return s.ownerID
}

// Unsubscribe ends the live query. It is idempotent, and once it returns no
// further callback is invoked. It must not be called from inside a callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
	})
}

// Done is closed when the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run(ctx context.Context, d *Documents, listener ChangeListener) {
	defer close(s.done)
	defer listener.Close()

	if !s.refresh(ctx, d) {
		return
	}

	changes := listener.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				s.fail(ErrClosed)
				return
			}
			// Coalesce a burst into one re-query.
			if !drain(changes) {
				s.fail(ErrClosed)
				return
			}
			if !s.refresh(ctx, d) {
				return
			}
		}
	}
}

// refresh runs the query and delivers the snapshot. It reports whether the
// subscription is still live.
func (s *Subscription) refresh(ctx context.Context, d *Documents) bool {
	recs, err := d.backend.ListPromptRecords(ctx, s.ownerID)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.fail(fmt.Errorf("query prompts for %s: %w", s.ownerID, err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.onSnapshot(recs)
	d.observer.SnapshotDelivered(len(recs))
	return true
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.onError == nil {
		return
	}
	s.stopped = true
	s.onError(err)
}

// drain empties any queued changes without blocking. It returns false if
// the channel was closed.
func drain(ch <-chan Change) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// IsClosed reports whether err means the change feed is gone.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
