package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/validation"
)

// PromptQuerier reads prompts without subscribing.
type PromptQuerier interface {
	GetPrompt(ctx context.Context, promptID string) (*store.Record, error)
	QueryPrompts(ctx context.Context, ownerID string) ([]*store.Record, error)
}

// PromptList is a filtered view of a user's prompts.
type PromptList struct {
	Prompts    []*domain.Prompt `json:"prompts"`
	Total      int              `json:"total"`
	Term       string           `json:"term,omitempty"`
	EmptyState EmptyState       `json:"empty_state,omitempty"`
}

// NewPromptList filters all by term.
func NewPromptList(all []*domain.Prompt, term string) *PromptList {
	visible := FilterPrompts(all, term)
	if visible == nil {
		visible = []*domain.Prompt{}
	}
	return &PromptList{
		Prompts:    visible,
		Total:      len(all),
		Term:       term,
		EmptyState: ComputeEmptyState(len(all), len(visible)),
	}
}

// Snapshot returns the view's current state as a list.
func (v *LiveView) Snapshot() *PromptList {
	v.mu.RLock()
	defer v.mu.RUnlock()
	list := NewPromptList(v.current, v.term)
	list.Prompts = clonePrompts(list.Prompts)
	return list
}

// CreatePromptRequest is the input for a new prompt.
type CreatePromptRequest struct {
	Text string `json:"text" validate:"notblank,max=20000"`
	Tags string `json:"tags" validate:"max=2000"`
}

// DeleteConfirmation is issued by the first step of a delete.
type DeleteConfirmation struct {
	PromptID  string    `json:"prompt_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PromptService serves prompt operations to stateless clients.
type PromptService struct {
	docs      PromptQuerier
	repo      PromptCommands
	confirmer *TokenConfirmer
	validator *validation.Validator
	logger    *slog.Logger
}

// NewPromptService creates a prompt service.
func NewPromptService(docs PromptQuerier, repo PromptCommands, confirmer *TokenConfirmer, v *validation.Validator, logger *slog.Logger) *PromptService {
	return &PromptService{docs: docs, repo: repo, confirmer: confirmer, validator: v, logger: logger}
}

// List returns ownerID's prompts, newest first, filtered by term.
func (s *PromptService) List(ctx context.Context, ownerID, term string) (*PromptList, error) {
	recs, err := s.docs.QueryPrompts(ctx, ownerID)
	if err != nil {
		return nil, mapStoreError(err, "list prompts")
	}
	return NewPromptList(toPrompts(recs), term), nil
}

// Create stores a prompt. It becomes visible with the next snapshot.
func (s *PromptService) Create(ctx context.Context, ownerID string, req CreatePromptRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	return s.repo.Create(ctx, ownerID, req.Text, req.Tags)
}

// RequestDelete starts a two-step delete and returns the token needed to
// confirm it. Prompts of other users are reported as not found.
func (s *PromptService) RequestDelete(ctx context.Context, ownerID, promptID string) (*DeleteConfirmation, error) {
	if _, err := s.owned(ctx, ownerID, promptID); err != nil {
		return nil, err
	}
	token, expires := s.confirmer.Issue(ownerID, promptID)
	s.logger.Debug("delete requested", "prompt_id", promptID, "owner_id", ownerID)
	return &DeleteConfirmation{PromptID: promptID, Token: token, ExpiresAt: expires}, nil
}

// ConfirmDelete redeems a confirmation token and deletes the prompt.
func (s *PromptService) ConfirmDelete(ctx context.Context, ownerID, promptID, token string) error {
	if err := s.confirmer.Redeem(token, ownerID, promptID); err != nil {
		return err
	}
	return s.repo.Remove(ctx, promptID)
}

func (s *PromptService) owned(ctx context.Context, ownerID, promptID string) (*store.Record, error) {
	rec, err := s.docs.GetPrompt(ctx, promptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("prompt %s not found", promptID)
		}
		return nil, mapStoreError(err, "get prompt")
	}
	if rec.Data.OwnerID != ownerID {
		return nil, domainerrors.NotFoundf("prompt %s not found", promptID)
	}
	return rec, nil
}
