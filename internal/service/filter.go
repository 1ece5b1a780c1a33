package service

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/promptvault/promptvault-server/internal/domain"
)

// FilterPrompts returns the prompts whose text or any tag contains term,
// compared case-insensitively. Order is preserved. An empty term returns
// list unchanged. Nil entries never match.
func FilterPrompts(list []*domain.Prompt, term string) []*domain.Prompt {
	if term == "" {
		return list
	}

	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(term)

	out := make([]*domain.Prompt, 0, len(list))
	for _, p := range list {
		if matches(fold, p, needle) {
			out = append(out, p)
		}
	}
	return out
}

func matches(fold cases.Caser, p *domain.Prompt, needle string) bool {
	if p == nil {
		return false
	}
	if p.Text != "" && strings.Contains(fold.String(p.Text), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(fold.String(tag), needle) {
			return true
		}
	}
	return false
}

// EmptyState explains why a visible list is empty.
type EmptyState string

// Empty states.
const (
	EmptyNone      EmptyState = ""
	EmptyNoPrompts EmptyState = "no_prompts"
	EmptyNoMatches EmptyState = "no_matches"
)

// Message returns the text shown for the state.
func (s EmptyState) Message() string {
	switch s {
	case EmptyNoPrompts:
		return "No prompts yet. Add your first one."
	case EmptyNoMatches:
		return "No prompts match your search."
	default:
		return ""
	}
}

// ComputeEmptyState distinguishes "nothing stored" from "nothing matches".
func ComputeEmptyState(total, visible int) EmptyState {
	switch {
	case total == 0:
		return EmptyNoPrompts
	case visible == 0:
		return EmptyNoMatches
	default:
		return EmptyNone
	}
}
