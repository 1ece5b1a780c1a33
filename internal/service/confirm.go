package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
)

// Confirmer asks the user to approve deleting a prompt.
type Confirmer interface {
	Confirm(ctx context.Context, p *domain.Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p *domain.Prompt) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, p *domain.Prompt) (bool, error) {
	return f(ctx, p)
}

// Clipboard receives copied prompt text.
type Clipboard interface {
	WriteText(text string) error
}

type pendingDelete struct {
	ownerID  string
	promptID string
	expires  time.Time
}

// TokenConfirmer implements two-step deletion for stateless clients: the
// request step issues a single-use token that the confirm step must
// present before it expires.
type TokenConfirmer struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]pendingDelete
}

// NewTokenConfirmer creates a confirmer whose tokens live for ttl.
func NewTokenConfirmer(ttl time.Duration) *TokenConfirmer {
	return &TokenConfirmer{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]pendingDelete),
	}
}

// Issue returns a confirmation token for deleting promptID.
func (c *TokenConfirmer) Issue(ownerID, promptID string) (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evict(now)

	token := uuid.NewString()
	expires := now.Add(c.ttl)
	c.pending[token] = pendingDelete{ownerID: ownerID, promptID: promptID, expires: expires}
	return token, expires
}

// Redeem consumes token. It fails unless the token was issued to ownerID
// for promptID and has not expired.
func (c *TokenConfirmer) Redeem(token, ownerID, promptID string) error {
	if _, err := uuid.Parse(token); err != nil {
		return domainerrors.Validation("invalid confirmation token")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[token]
	if !ok || p.ownerID != ownerID || p.promptID != promptID {
		return domainerrors.Forbidden("deletion was not confirmed")
	}
	delete(c.pending, token)

	if c.now().After(p.expires) {
		return domainerrors.Forbidden("confirmation expired")
	}
	return nil
}

// Pending returns the number of outstanding tokens.
func (c *TokenConfirmer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *TokenConfirmer) evict(now time.Time) {
	for token, p := range c.pending {
		if now.After(p.expires) {
			delete(c.pending, token)
		}
	}
}
