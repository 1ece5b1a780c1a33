package store

import (
	"slices"
	"strings"
	"time"

	"github.com/promptvault/promptvault-server/internal/domain"
)

// PromptDocument is the field set stored for a prompt.
type PromptDocument struct {
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	OwnerID   string    `json:"uid"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record is a stored prompt document with its store-assigned id.
type Record struct {
	ID   string         `json:"id"`
	Data PromptDocument `json:"data"`
}

// Prompt converts the record to a domain.Prompt, copying the store id.
func (r *Record) Prompt() *domain.Prompt {
	return &domain.Prompt{
		ID:        r.ID,
		Text:      r.Data.Text,
		Tags:      slices.Clone(r.Data.Tags),
		OwnerID:   r.Data.OwnerID,
		CreatedAt: r.Data.CreatedAt,
	}
}

// SortRecords orders records newest first, ties broken by id descending.
func SortRecords(recs []*Record) {
	slices.SortFunc(recs, func(a, b *Record) int {
		if c := b.Data.CreatedAt.Compare(a.Data.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}
