// Package search provides ranked full-text search over prompts using Bleve.
// Every query is scoped to a single owner.
package search

import (
	"slices"
	"time"

	"github.com/promptvault/promptvault-server/internal/domain"
)

// Document is the indexed form of a prompt.
type Document struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at"` // Unix millis
}

// FromPrompt converts a prompt into a search document. Empty tags are not
// indexed.
func FromPrompt(p *domain.Prompt) *Document {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	return &Document{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		Text:      p.Text,
		Tags:      tags,
		CreatedAt: p.CreatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"owner_id":   d.OwnerID,
		"text":       d.Text,
		"created_at": d.CreatedAt,
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	return m
}

// CreatedTime returns CreatedAt as a time.
func (d *Document) CreatedTime() time.Time {
	return time.UnixMilli(d.CreatedAt).UTC()
}
