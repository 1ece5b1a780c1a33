package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/service"
)

func (s *Server) registerPromptRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listPrompts",
		Method:      http.MethodGet,
		Path:        "/api/v1/prompts",
		Summary:     "List prompts",
		Description: "Returns the signed-in user's prompts, newest first, optionally filtered by a case-insensitive substring of the text or any tag",
		Tags:        []string{"Prompts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListPrompts)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createPrompt",
		Method:        http.MethodPost,
		Path:          "/api/v1/prompts",
		Summary:       "Create prompt",
		Description:   "Stores a prompt. It appears in lists and streams once the store has committed it.",
		Tags:          []string{"Prompts"},
		DefaultStatus: http.StatusAccepted,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreatePrompt)

	huma.Register(s.api, huma.Operation{
		OperationID: "requestPromptDelete",
		Method:      http.MethodPost,
		Path:        "/api/v1/prompts/{id}/delete-request",
		Summary:     "Request prompt deletion",
		Description: "Returns a single-use token that must be passed to the delete call",
		Tags:        []string{"Prompts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRequestPromptDelete)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deletePrompt",
		Method:        http.MethodDelete,
		Path:          "/api/v1/prompts/{id}",
		Summary:       "Delete prompt",
		Description:   "Deletes a prompt using a confirmation token from the delete request",
		Tags:          []string{"Prompts"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeletePrompt)
}

// === DTOs ===

// ListPromptsInput contains parameters for listing prompts.
type ListPromptsInput struct {
	Query string `query:"q" maxLength:"200" doc:"Search term matched against text and tags"`
}

// PromptResponse is a single prompt in API responses.
type PromptResponse struct {
	ID        string    `json:"id" doc:"Prompt ID"`
	Text      string    `json:"text" doc:"Prompt body"`
	Tags      []string  `json:"tags" doc:"Tags in entry order"`
	CreatedAt time.Time `json:"created_at" doc:"Server timestamp of creation"`
}

// PromptListResponse is a filtered prompt list.
type PromptListResponse struct {
	Prompts    []PromptResponse `json:"prompts" doc:"Visible prompts, newest first"`
	Total      int              `json:"total" doc:"Number of prompts before filtering"`
	Term       string           `json:"term,omitempty" doc:"Applied search term"`
	EmptyState string           `json:"empty_state,omitempty" doc:"no_prompts or no_matches when the list is empty"`
	Message    string           `json:"message,omitempty" doc:"Text to show instead of an empty list"`
}

// PromptListOutput wraps the list response for Huma.
type PromptListOutput struct {
	Body PromptListResponse
}

// CreatePromptRequest is the request body for creating a prompt.
type CreatePromptRequest struct {
	Text string `json:"text" maxLength:"20000" doc:"Prompt body, must not be blank"`
	Tags string `json:"tags,omitempty" maxLength:"2000" doc:"Comma separated tags"`
}

// CreatePromptInput wraps the create request for Huma.
type CreatePromptInput struct {
	Body CreatePromptRequest
}

// PromptIDInput identifies a prompt in the path.
type PromptIDInput struct {
	ID string `path:"id" doc:"Prompt ID"`
}

// DeleteConfirmationResponse carries the token for the second delete step.
type DeleteConfirmationResponse struct {
	PromptID  string    `json:"prompt_id" doc:"Prompt to delete"`
	Token     string    `json:"token" doc:"Pass as ?confirm= to the delete call"`
	ExpiresAt time.Time `json:"expires_at" doc:"Token expiry"`
}

// DeleteConfirmationOutput wraps the confirmation for Huma.
type DeleteConfirmationOutput struct {
	Body DeleteConfirmationResponse
}

// DeletePromptInput contains parameters for deleting a prompt.
type DeletePromptInput struct {
	ID      string `path:"id" doc:"Prompt ID"`
	Confirm string `query:"confirm" required:"true" doc:"Token from the delete request"`
}

// === Handlers ===

func (s *Server) handleListPrompts(ctx context.Context, input *ListPromptsInput) (*PromptListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.services.Prompts.List(ctx, userID, input.Query)
	if err != nil {
		return nil, err
	}

	return &PromptListOutput{Body: mapPromptList(list)}, nil
}

func (s *Server) handleCreatePrompt(ctx context.Context, input *CreatePromptInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.CreatePromptRequest{Text: input.Body.Text, Tags: input.Body.Tags}
	if err := s.services.Prompts.Create(ctx, userID, req); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Prompt accepted"}}, nil
}

func (s *Server) handleRequestPromptDelete(ctx context.Context, input *PromptIDInput) (*DeleteConfirmationOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	conf, err := s.services.Prompts.RequestDelete(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &DeleteConfirmationOutput{Body: DeleteConfirmationResponse{
		PromptID:  conf.PromptID,
		Token:     conf.Token,
		ExpiresAt: conf.ExpiresAt,
	}}, nil
}

func (s *Server) handleDeletePrompt(ctx context.Context, input *DeletePromptInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Prompts.ConfirmDelete(ctx, userID, input.ID, input.Confirm); err != nil {
		return nil, err
	}

	return nil, nil
}

// === Helpers ===

func mapPrompt(p *domain.Prompt) PromptResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PromptResponse{
		ID:        p.ID,
		Text:      p.Text,
		Tags:      tags,
		CreatedAt: p.CreatedAt,
	}
}

func mapPromptList(list *service.PromptList) PromptListResponse {
	prompts := make([]PromptResponse, len(list.Prompts))
	for i, p := range list.Prompts {
		prompts[i] = mapPrompt(p)
	}
	return PromptListResponse{
		Prompts:    prompts,
		Total:      list.Total,
		Term:       list.Term,
		EmptyState: string(list.EmptyState),
		Message:    list.EmptyState.Message(),
	}
}
