// Package domain contains the core entities of PromptVault.
package domain

import (
	"strings"
	"time"
)

// Prompt is a short text snippet owned by a single user.
//
// ID and CreatedAt are assigned by the document store at write time.
// OwnerID is set once at creation and never changes.
type Prompt struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseTags converts comma separated input into a tag list.
// Each segment is trimmed. Empty segments and duplicates are kept as-is,
// so "react, css , " yields ["react", "css", ""].
func ParseTags(raw string) []string {
	segments := strings.Split(raw, ",")
	tags := make([]string, len(segments))
	for i, s := range segments {
		tags[i] = strings.TrimSpace(s)
	}
	return tags
}

// HasText reports whether the prompt body is non-empty after trimming.
func HasText(text string) bool {
	return strings.TrimSpace(text) != ""
}

// Clone returns a deep copy of the prompt.
func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return nil
	}
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}
