package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchPrompts",
		Method:      http.MethodGet,
		Path:        "/api/v1/prompts/search",
		Summary:     "Search prompts",
		Description: "Ranked full-text search over the signed-in user's prompts with fuzzy and prefix matching",
		Tags:        []string{"Prompts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchPrompts)
}

// SearchPromptsInput contains parameters for prompt search.
type SearchPromptsInput struct {
	Query     string `query:"q" maxLength:"200" doc:"Search query; empty lists everything"`
	Tags      string `query:"tags" maxLength:"500" doc:"Comma-separated tags that must all be present"`
	Sort      string `query:"sort" enum:"relevance,recent" default:"relevance" doc:"Result order"`
	Limit     int    `query:"limit" minimum:"0" maximum:"100" doc:"Max results (default 20)"`
	Offset    int    `query:"offset" minimum:"0" doc:"Pagination offset"`
	Highlight bool   `query:"highlight" default:"true" doc:"Include highlighted fragments"`
}

// SearchHitResponse is a single search result.
type SearchHitResponse struct {
	ID         string            `json:"id" doc:"Prompt ID"`
	Score      float64           `json:"score" doc:"Relevance score"`
	Text       string            `json:"text" doc:"Prompt body"`
	Tags       []string          `json:"tags,omitempty" doc:"Prompt tags"`
	CreatedAt  time.Time         `json:"created_at" doc:"Creation time"`
	Highlights map[string]string `json:"highlights,omitempty" doc:"Highlighted fragments by field"`
}

// SearchPromptsResponse is one page of search results.
type SearchPromptsResponse struct {
	Query  string              `json:"query" doc:"Executed query"`
	Total  uint64              `json:"total" doc:"Total number of matches"`
	TookMs int64               `json:"took_ms" doc:"Search time in milliseconds"`
	Hits   []SearchHitResponse `json:"hits" doc:"Matching prompts"`
}

// SearchPromptsOutput wraps the search response for Huma.
type SearchPromptsOutput struct {
	Body SearchPromptsResponse
}

func (s *Server) handleSearchPrompts(ctx context.Context, input *SearchPromptsInput) (*SearchPromptsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if s.services.Search == nil {
		return nil, domainerrors.Unavailable("search is disabled")
	}

	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.Tags = splitTags(input.Tags)
	params.SortBy = input.Sort
	params.Offset = input.Offset
	params.Highlight = input.Highlight
	if input.Limit > 0 {
		params.Limit = input.Limit
	}

	result, err := s.services.Search.Search(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHitResponse, len(result.Hits))
	for i, h := range result.Hits {
		hits[i] = SearchHitResponse{
			ID:         h.ID,
			Score:      h.Score,
			Text:       h.Text,
			Tags:       h.Tags,
			CreatedAt:  h.CreatedAt,
			Highlights: h.Highlights,
		}
	}

	return &SearchPromptsOutput{Body: SearchPromptsResponse{
		Query:  result.Query,
		Total:  result.Total,
		TookMs: result.TookMs,
		Hits:   hits,
	}}, nil
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for t := range strings.SplitSeq(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
