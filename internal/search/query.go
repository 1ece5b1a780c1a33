package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ErrOwnerRequired is returned for a query without an owner.
var ErrOwnerRequired = errors.New("search: owner is required")

// MaxLimit caps the number of hits per page.
const MaxLimit = 100

// SearchParams configures a search query.
type SearchParams struct {
	OwnerID string   // Required; results never cross owners
	Query   string   // Free text; empty matches everything
	Tags    []string // Every listed tag must be present

	Limit  int
	Offset int

	SortBy    string // "relevance" or "recent"
	Highlight bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:     20,
		SortBy:    "relevance",
		Highlight: true,
	}
}

// SearchResult holds one page of hits.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is a single matching prompt.
type SearchHit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Text       string            `json:"text"`
	Tags       []string          `json:"tags,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a query within one owner's prompts.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.OwnerID == "" {
		return nil, ErrOwnerRequired
	}
	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}
	params.Limit = min(params.Limit, MaxLimit)
	params.Offset = max(params.Offset, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params)

	if params.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("text")
	}
	req.Fields = []string{"id", "text", "tags", "created_at"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}

		if text, ok := hit.Fields["text"].(string); ok {
			h.Text = text
		}
		h.Tags = stringsField(hit.Fields["tags"])
		if ms, ok := hit.Fields["created_at"].(float64); ok {
			h.CreatedAt = time.UnixMilli(int64(ms)).UTC()
		}

		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, h)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query. The owner filter is always
// part of the conjunction.
func buildSearchQuery(params SearchParams) query.Query {
	owner := bleve.NewTermQuery(params.OwnerID)
	owner.SetField("owner_id")
	queries := []query.Query{owner}

	if q := strings.TrimSpace(params.Query); q != "" {
		lower := strings.ToLower(q)

		textMatch := bleve.NewMatchQuery(q)
		textMatch.SetField("text")
		textMatch.SetBoost(2.0)

		// A whole-tag hit ranks above a text hit.
		tagMatch := bleve.NewTermQuery(lower)
		tagMatch.SetField("tags")
		tagMatch.SetBoost(3.0)

		fuzzy := bleve.NewFuzzyQuery(lower)
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("text")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{textMatch, tagMatch, fuzzy}

		// Prefix query for type-ahead (minimum 2 chars)
		if len(lower) >= 2 {
			prefix := bleve.NewPrefixQuery(lower)
			prefix.SetField("text")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)

			tagPrefix := bleve.NewPrefixQuery(lower)
			tagPrefix.SetField("tags")
			tagPrefix.SetBoost(0.5)
			textQueries = append(textQueries, tagPrefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	for _, tag := range params.Tags {
		if tag = strings.TrimSpace(tag); tag == "" {
			continue
		}
		tq := bleve.NewTermQuery(strings.ToLower(tag))
		tq.SetField("tags")
		queries = append(queries, tq)
	}

	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case "recent":
		req.SortBy([]string{"-created_at", "-_id"})
	default:
		req.SortBy([]string{"-_score", "-created_at"})
	}
}

// stringsField reads a stored multi-value field. Bleve returns a single
// value as a string and several as a slice.
func stringsField(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
