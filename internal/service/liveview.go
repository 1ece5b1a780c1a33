package service

import (
	"log/slog"
	"sync"

	"github.com/promptvault/promptvault-server/internal/domain"
)

// Subscriber opens and closes the single live subscription behind a view.
type Subscriber interface {
	Subscribe(ownerID string, onSnapshot func([]*domain.Prompt), onError func(error)) error
	Unsubscribe()
}

// LiveView holds the latest snapshot of the signed-in user's prompts and
// the current search term. The list only changes when a snapshot replaces
// it wholesale.
type LiveView struct {
	repo   Subscriber
	logger *slog.Logger

	mu      sync.RWMutex
	ownerID string
	current []*domain.Prompt
	term    string
	loaded  bool
	err     error
	gen     uint64

	updates chan struct{}
}

// NewLiveView creates a detached view.
func NewLiveView(repo Subscriber, logger *slog.Logger) *LiveView {
	return &LiveView{
		repo:    repo,
		logger:  logger,
		updates: make(chan struct{}, 1),
	}
}

// Attach subscribes the view to ownerID's prompts. A previous attachment is
// torn down first and its list cleared.
func (v *LiveView) Attach(ownerID string) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.ownerID = ownerID
	v.current = nil
	v.loaded = false
	v.err = nil
	v.mu.Unlock()

	// The repository invokes the callbacks on its own goroutine, so no view
	// lock may be held here.
	err := v.repo.Subscribe(ownerID,
		func(prompts []*domain.Prompt) { v.applySnapshot(gen, prompts) },
		func(err error) { v.applyError(gen, err) },
	)
	if err != nil {
		v.applyError(gen, err)
		return err
	}
	return nil
}

// Detach closes the subscription and clears the list. No snapshot is
// applied after Detach returns.
func (v *LiveView) Detach() {
	v.mu.Lock()
	v.gen++
	v.mu.Unlock()

	v.repo.Unsubscribe()

	v.mu.Lock()
	v.ownerID = ""
	v.current = nil
	v.loaded = false
	v.err = nil
	v.mu.Unlock()
	v.notify()
}

// OwnerID returns the attached owner, or "" when detached.
func (v *LiveView) OwnerID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ownerID
}

// SetSearchTerm updates the filter. The stored list is unaffected.
func (v *LiveView) SetSearchTerm(term string) {
	v.mu.Lock()
	changed := v.term != term
	v.term = term
	v.mu.Unlock()
	if changed {
		v.notify()
	}
}

// SearchTerm returns the current filter.
func (v *LiveView) SearchTerm() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.term
}

// Loaded reports whether a snapshot has arrived since the last Attach.
func (v *LiveView) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

// Prompts returns the full latest snapshot, newest first.
func (v *LiveView) Prompts() []*domain.Prompt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return clonePrompts(v.current)
}

// Visible returns the snapshot filtered by the search term.
func (v *LiveView) Visible() []*domain.Prompt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return clonePrompts(FilterPrompts(v.current, v.term))
}

// Find returns the prompt with id from the latest snapshot.
func (v *LiveView) Find(id string) (*domain.Prompt, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, p := range v.current {
		if p != nil && p.ID == id {
			return p.Clone(), true
		}
	}
	return nil, false
}

// EmptyState reports why Visible is empty, if it is.
func (v *LiveView) EmptyState() EmptyState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return ComputeEmptyState(len(v.current), len(FilterPrompts(v.current, v.term)))
}

// Err returns the last subscription error, cleared by the next snapshot.
func (v *LiveView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Updates signals that the view changed. Signals coalesce: a reader that
// falls behind sees one pending signal, not one per change.
func (v *LiveView) Updates() <-chan struct{} {
	return v.updates
}

func (v *LiveView) applySnapshot(gen uint64, prompts []*domain.Prompt) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.current = prompts
	v.loaded = true
	v.err = nil
	v.mu.Unlock()

	v.logger.Debug("snapshot applied", "count", len(prompts))
	v.notify()
}

func (v *LiveView) applyError(gen uint64, err error) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.err = err
	v.mu.Unlock()

	v.logger.Warn("live view error", "error", err)
	v.notify()
}

// clonePrompts copies the list so callers cannot change the snapshot.
func clonePrompts(prompts []*domain.Prompt) []*domain.Prompt {
	out := make([]*domain.Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = p.Clone()
	}
	return out
}

func (v *LiveView) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
