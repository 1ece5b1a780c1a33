package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
)

// PromptCommands is the repository surface a session drives.
type PromptCommands interface {
	Subscriber
	Creator
	Remove(ctx context.Context, promptID string) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Confirmer Confirmer
	Clipboard Clipboard
}

// Session is the context of one client: it follows the identity, keeps
// the live view attached to the signed-in user and runs user commands.
type Session struct {
	identity  *Identity
	repo      PromptCommands
	view      *LiveView
	form      *CreateForm
	confirmer Confirmer
	clipboard Clipboard
	logger    *slog.Logger

	closeOnce   sync.Once
	cancelWatch func()
}

// NewSession wires identity changes to a new live view over repo.
func NewSession(identity *Identity, repo PromptCommands, opts SessionOptions, logger *slog.Logger) *Session {
	s := &Session{
		identity:  identity,
		repo:      repo,
		view:      NewLiveView(repo, logger),
		confirmer: opts.Confirmer,
		clipboard: opts.Clipboard,
		logger:    logger,
	}
	s.form = NewCreateForm(repo, s.view.OwnerID)
	s.cancelWatch = identity.Watch(s.onIdentity)
	return s
}

func (s *Session) onIdentity(profile *domain.Profile) {
	if profile == nil {
		if s.view.OwnerID() != "" {
			s.view.Detach()
			s.form.Reset()
		}
		return
	}
	if s.view.OwnerID() == profile.ID && s.view.Err() == nil {
		return
	}
	if err := s.view.Attach(profile.ID); err != nil {
		s.logger.Warn("attach live view failed", "user_id", profile.ID, "error", err)
	}
}

// Identity returns the session's identity.
func (s *Session) Identity() *Identity { return s.identity }

// View returns the live view.
func (s *Session) View() *LiveView { return s.view }

// Form returns the create form.
func (s *Session) Form() *CreateForm { return s.form }

// RequestDelete asks the confirmer about the prompt with id and deletes it
// only when confirmed. It reports whether the delete was issued.
func (s *Session) RequestDelete(ctx context.Context, promptID string) (bool, error) {
	p, ok := s.view.Find(promptID)
	if !ok {
		return false, domainerrors.NotFoundf("prompt %s not found", promptID)
	}
	if s.confirmer == nil {
		return false, domainerrors.Unavailable("no confirmation available")
	}

	confirmed, err := s.confirmer.Confirm(ctx, p)
	if err != nil {
		return false, err
	}
	if !confirmed {
		s.logger.Debug("delete cancelled", "prompt_id", promptID)
		return false, nil
	}
	return true, s.ConfirmDelete(ctx, promptID)
}

// ConfirmDelete removes a prompt. The view keeps showing it until the next
// snapshot arrives.
func (s *Session) ConfirmDelete(ctx context.Context, promptID string) error {
	if s.view.OwnerID() == "" {
		return domainerrors.Unauthorized("sign in to delete prompts")
	}
	return s.repo.Remove(ctx, promptID)
}

// Copy places the text of the prompt with id on the clipboard.
func (s *Session) Copy(promptID string) error {
	p, ok := s.view.Find(promptID)
	if !ok {
		return domainerrors.NotFoundf("prompt %s not found", promptID)
	}
	if s.clipboard == nil {
		return domainerrors.Unavailable("clipboard not available")
	}
	return s.clipboard.WriteText(p.Text)
}

// Close stops following the identity and releases the subscription.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelWatch()
		s.view.Detach()
	})
}
