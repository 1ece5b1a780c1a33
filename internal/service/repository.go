package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/store"
)

// DocumentStore is the part of store.Documents the repository uses.
type DocumentStore interface {
	InsertPrompt(ctx context.Context, doc store.PromptDocument) (string, error)
	DeletePrompt(ctx context.Context, id string) error
	WatchPrompts(ownerID string, onSnapshot func([]*store.Record), onError func(error)) (*store.Subscription, error)
}

// RetryPolicy controls resubscription after a live subscription is lost.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Delay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}

// CommandObserver records the outcome of repository commands.
type CommandObserver interface {
	CommandCompleted(op string, err error)
}

type noopCommandObserver struct{}

func (noopCommandObserver) CommandCompleted(string, error) {}

// errStale marks work belonging to a subscription that was replaced.
var errStale = errors.New("subscription replaced")

// PromptRepository maps store records to prompts and owns at most one live
// subscription at a time.
type PromptRepository struct {
	docs     DocumentStore
	policy   RetryPolicy
	observer CommandObserver
	logger   *slog.Logger

	mu     sync.Mutex
	sub    *store.Subscription
	gen    uint64
	cancel context.CancelFunc

	// deliverMu is held while a callback runs so Unsubscribe can wait out
	// an in-flight delivery.
	deliverMu sync.Mutex
}

// NewPromptRepository creates a repository over docs.
func NewPromptRepository(docs DocumentStore, policy RetryPolicy, logger *slog.Logger) *PromptRepository {
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy
	}
	return &PromptRepository{
		docs:     docs,
		policy:   policy,
		observer: noopCommandObserver{},
		logger:   logger,
	}
}

// SetCommandObserver registers an observer for Create and Remove outcomes.
func (r *PromptRepository) SetCommandObserver(o CommandObserver) {
	r.observer = o
}

// Subscribe tears down any previous subscription, then opens one over
// ownerID's prompts. It returns once the first snapshot has been delivered
// or the first attempt failed.
//
// If an established subscription is later lost, every failure is passed to
// onError and the repository resubscribes with exponential backoff until
// the retry policy is exhausted. onSnapshot and onError run on the store's
// delivery goroutine; they must not call back into the repository.
func (r *PromptRepository) Subscribe(ownerID string, onSnapshot func([]*domain.Prompt), onError func(error)) error {
	r.Unsubscribe()

	r.mu.Lock()
	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	l := &liveQuery{repo: r, ctx: ctx, gen: gen, ownerID: ownerID, onSnapshot: onSnapshot, onError: onError}
	if err := l.open(); err != nil {
		return mapStoreError(err, "subscribe to prompts")
	}
	r.logger.Debug("prompt subscription opened", "owner_id", ownerID)
	return nil
}

// Unsubscribe releases the active subscription, if any, and cancels pending
// resubscribe attempts. Once it returns no further snapshot is delivered.
func (r *PromptRepository) Unsubscribe() {
	r.mu.Lock()
	sub := r.sub
	cancel := r.cancel
	r.sub = nil
	r.cancel = nil
	r.gen++
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.deliverMu.Lock()
	//nolint:staticcheck // empty critical section is a barrier
	r.deliverMu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		r.logger.Debug("prompt subscription closed", "owner_id", sub.OwnerID())
	}
}

// Create stores a new prompt for ownerID. Text that is empty after trimming
// is rejected without contacting the store. Tags are split on commas.
func (r *PromptRepository) Create(ctx context.Context, ownerID, text, rawTags string) (err error) {
	defer func() { r.observer.CommandCompleted("create", err) }()

	if !domain.HasText(text) {
		return domainerrors.Validation("prompt text is required")
	}
	if ownerID == "" {
		return domainerrors.Unauthorized("sign in to save prompts")
	}

	promptID, err := r.docs.InsertPrompt(ctx, store.PromptDocument{
		Text:    text,
		Tags:    domain.ParseTags(rawTags),
		OwnerID: ownerID,
	})
	if err != nil {
		r.logger.Warn("create prompt failed", "owner_id", ownerID, "error", err)
		return mapStoreError(err, "create prompt")
	}

	r.logger.Info("prompt created", "prompt_id", promptID, "owner_id", ownerID)
	return nil
}

// Remove deletes a prompt by id. The local list is not touched; the change
// arrives with the next snapshot.
func (r *PromptRepository) Remove(ctx context.Context, promptID string) (err error) {
	defer func() { r.observer.CommandCompleted("remove", err) }()

	if err := r.docs.DeletePrompt(ctx, promptID); err != nil {
		r.logger.Warn("remove prompt failed", "prompt_id", promptID, "error", err)
		return mapStoreError(err, "remove prompt")
	}

	r.logger.Info("prompt removed", "prompt_id", promptID)
	return nil
}

// current reports whether gen is still the live generation.
func (r *PromptRepository) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

// liveQuery is one logical subscription across resubscribe attempts.
type liveQuery struct {
	repo       *PromptRepository
	ctx        context.Context
	gen        uint64
	ownerID    string
	onSnapshot func([]*domain.Prompt)
	onError    func(error)
}

// open starts a store subscription and waits for its first result.
func (l *liveQuery) open() error {
	var established atomic.Bool
	first := make(chan error, 1)

	sub, err := l.repo.docs.WatchPrompts(l.ownerID,
		func(recs []*store.Record) {
			// The first snapshot is handed over before open returns.
			l.deliver(func() { l.onSnapshot(toPrompts(recs)) })
			if established.CompareAndSwap(false, true) {
				first <- nil
			}
		},
		func(err error) {
			if established.CompareAndSwap(false, true) {
				first <- err
				return
			}
			l.lost(err)
		},
	)
	if err != nil {
		return err
	}

	select {
	case err := <-first:
		if err != nil {
			sub.Unsubscribe()
			return err
		}
	case <-l.ctx.Done():
		sub.Unsubscribe()
		return errStale
	}

	r := l.repo
	r.mu.Lock()
	if r.gen != l.gen {
		r.mu.Unlock()
		sub.Unsubscribe()
		return errStale
	}
	r.sub = sub
	r.mu.Unlock()
	return nil
}

// lost runs on the store's delivery goroutine after an established
// subscription failed.
func (l *liveQuery) lost(cause error) {
	l.report(domainerrors.Wrap(cause, domainerrors.CodeUnavailable, "prompt subscription lost"))

	if store.IsClosed(cause) {
		l.repo.logger.Info("prompt subscription ended, store closed", "owner_id", l.ownerID)
		return
	}
	go l.resubscribe()
}

func (l *liveQuery) resubscribe() {
	r := l.repo
	p := r.policy

	select {
	case <-time.After(p.Delay):
	case <-l.ctx.Done():
		return
	}

	err := retry.Do(
		func() error {
			if !r.current(l.gen) {
				return retry.Unrecoverable(errStale)
			}
			err := l.open()
			if err == nil || errors.Is(err, errStale) {
				return err
			}
			if store.IsClosed(err) {
				return retry.Unrecoverable(err)
			}
			l.report(domainerrors.Wrap(err, domainerrors.CodeUnavailable, "resubscribe failed"))
			return err
		},
		retry.Context(l.ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("resubscribe attempt failed", "owner_id", l.ownerID, "attempt", n+1, "error", err)
		}),
	)

	switch {
	case err == nil:
		r.logger.Info("prompt subscription restored", "owner_id", l.ownerID)
	case errors.Is(err, errStale) || l.ctx.Err() != nil:
	default:
		r.logger.Error("giving up on prompt subscription", "owner_id", l.ownerID, "error", err)
		l.report(domainerrors.Wrapf(err, domainerrors.CodeUnavailable, "prompt subscription unavailable after %d attempts", p.Attempts))
	}
}

func (l *liveQuery) report(err error) {
	if l.onError != nil {
		l.deliver(func() { l.onError(err) })
	}
}

// deliver runs fn unless the query has been replaced or unsubscribed.
func (l *liveQuery) deliver(fn func()) {
	r := l.repo
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if r.current(l.gen) {
		fn()
	}
}

func toPrompts(recs []*store.Record) []*domain.Prompt {
	prompts := make([]*domain.Prompt, len(recs))
	for i, rec := range recs {
		prompts[i] = rec.Prompt()
	}
	return prompts
}

// mapStoreError converts persistence errors into domain errors.
func mapStoreError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStale):
		return domainerrors.Conflict(action + ": subscription replaced")
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, "prompt not found")
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Wrap(err, domainerrors.CodeValidation, action)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Wrap(err, domainerrors.CodeAlreadyExists, action)
	case errors.Is(err, store.ErrClosed):
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, action)
	default:
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return err
		}
		return fmt.Errorf("%s: %w", action, err)
	}
}
