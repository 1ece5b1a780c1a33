package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/search"
	"github.com/promptvault/promptvault-server/internal/store"
)

// PromptLister lists every stored prompt record.
type PromptLister interface {
	ListAllPromptRecords(ctx context.Context) ([]*store.Record, error)
	CountPromptRecords(ctx context.Context) (int, error)
}

// SearchService keeps the search index in step with the store and runs
// ranked searches. It implements store.SearchIndexer.
type SearchService struct {
	index  *search.SearchIndex
	store  PromptLister
	logger *slog.Logger
}

var _ store.SearchIndexer = (*SearchService)(nil)

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, store PromptLister, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  store,
		logger: logger,
	}
}

// Search runs a ranked full-text search over ownerID's prompts.
func (s *SearchService) Search(ctx context.Context, ownerID string, params search.SearchParams) (*search.SearchResult, error) {
	if ownerID == "" {
		return nil, domainerrors.Unauthorized("sign in to search prompts")
	}
	params.OwnerID = ownerID
	return s.index.Search(ctx, params)
}

// IndexPrompt indexes or replaces a single prompt.
func (s *SearchService) IndexPrompt(_ context.Context, p *domain.Prompt) error {
	if err := s.index.IndexDocument(search.FromPrompt(p)); err != nil {
		return fmt.Errorf("index prompt: %w", err)
	}
	s.logger.Debug("indexed prompt", "id", p.ID)
	return nil
}

// DeletePrompt removes a prompt from the index.
func (s *SearchService) DeletePrompt(_ context.Context, promptID string) error {
	return s.index.DeleteDocument(promptID)
}

// DocumentCount returns the number of indexed prompts.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// EnsureIndexed reindexes when the index is empty but the store is not,
// as after a mapping change.
func (s *SearchService) EnsureIndexed(ctx context.Context) error {
	indexed, err := s.index.DocumentCount()
	if err != nil {
		return fmt.Errorf("count indexed prompts: %w", err)
	}
	stored, err := s.store.CountPromptRecords(ctx)
	if err != nil {
		return fmt.Errorf("count stored prompts: %w", err)
	}
	if indexed > 0 || stored == 0 {
		return nil
	}
	return s.ReindexAll(ctx)
}

// ReindexAll rebuilds the entire search index from the store.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	recs, err := s.store.ListAllPromptRecords(ctx)
	if err != nil {
		return fmt.Errorf("list prompts: %w", err)
	}

	docs := make([]*search.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, search.FromPrompt(rec.Prompt()))
	}
	if len(docs) > 0 {
		if err := s.index.IndexDocuments(docs); err != nil {
			return fmt.Errorf("index prompts: %w", err)
		}
	}

	s.logger.Info("full reindex complete", "total_documents", len(docs))
	return nil
}
