package service

import (
	"context"
	"sync"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
)

// ErrSubmitInProgress is returned when Submit is called while a previous
// submit has not finished.
var ErrSubmitInProgress = domainerrors.Conflict("a submit is already in progress")

// Creator stores a new prompt.
type Creator interface {
	Create(ctx context.Context, ownerID, text, rawTags string) error
}

// CreateForm holds the input for a new prompt.
type CreateForm struct {
	creator Creator
	owner   func() string

	mu         sync.Mutex
	text       string
	tags       string
	submitting bool
}

// NewCreateForm creates an empty form. owner reports the signed-in user at
// submit time.
func NewCreateForm(creator Creator, owner func() string) *CreateForm {
	return &CreateForm{creator: creator, owner: owner}
}

// SetText replaces the prompt body.
func (f *CreateForm) SetText(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

// SetTags replaces the raw comma-separated tags.
func (f *CreateForm) SetTags(tags string) {
	f.mu.Lock()
	f.tags = tags
	f.mu.Unlock()
}

// Text returns the prompt body.
func (f *CreateForm) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

// Tags returns the raw tags.
func (f *CreateForm) Tags() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags
}

// Submitting reports whether a submit is in flight.
func (f *CreateForm) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Reset clears the inputs.
func (f *CreateForm) Reset() {
	f.mu.Lock()
	f.text, f.tags = "", ""
	f.mu.Unlock()
}

// Submit creates a prompt from the form. Empty text is rejected without
// contacting the store and leaves the form untouched. The form is cleared
// on success and kept on failure.
func (f *CreateForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitInProgress
	}
	text, tags := f.text, f.tags
	if !domain.HasText(text) {
		f.mu.Unlock()
		return domainerrors.Validation("prompt text is required")
	}
	f.submitting = true
	f.mu.Unlock()

	err := f.creator.Create(ctx, f.owner(), text, tags)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		return err
	}
	// Edits made during the submit are kept.
	if f.text == text && f.tags == tags {
		f.text, f.tags = "", ""
	}
	return nil
}
