package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
)

type sessionEnv struct {
	*testEnv
	auth     *AuthService
	docs     *countingDocs
	repo     *PromptRepository
	identity *Identity
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	env := newTestEnv(t)
	docs := &countingDocs{Documents: env.docs}
	authSvc := newTestAuthService(t, env)
	register(t, authSvc, "ada@example.com")
	register(t, authSvc, "bob@example.com")

	return &sessionEnv{
		testEnv:  env,
		auth:     authSvc,
		docs:     docs,
		repo:     NewPromptRepository(docs, RetryPolicy{Attempts: 1, Delay: time.Millisecond}, testLogger),
		identity: NewIdentity(authSvc, testLogger),
	}
}

func (e *sessionEnv) signIn(t *testing.T, email string) *domain.Profile {
	t.Helper()
	p, err := e.identity.SignIn(context.Background(), Credentials{Email: email, Password: "correct horse"})
	require.NoError(t, err)
	return p
}

type memClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *memClipboard) WriteText(text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

func (c *memClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func TestIdentity_SignInFailureKeepsState(t *testing.T) {
	env := newSessionEnv(t)

	var seen []*domain.Profile
	cancel := env.identity.Watch(func(p *domain.Profile) { seen = append(seen, p) })
	defer cancel()

	_, err := env.identity.SignIn(context.Background(), Credentials{Email: "ada@example.com", Password: "nope nope"})
	assert.Equal(t, domainerrors.CodeInvalidCredentials, domainerrors.CodeOf(err))
	assert.Nil(t, env.identity.Current())
	assert.Empty(t, env.identity.Token())
	assert.Equal(t, []*domain.Profile{nil}, seen)
}

func TestIdentity_WatchSequence(t *testing.T) {
	env := newSessionEnv(t)

	var seen []string
	cancel := env.identity.Watch(func(p *domain.Profile) {
		if p == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, p.Email)
	})

	env.signIn(t, "ada@example.com")
	token := env.identity.Token()
	env.identity.SignOut()
	env.identity.SignOut()
	cancel()
	env.signIn(t, "bob@example.com")

	assert.Equal(t, []string{"", "ada@example.com", ""}, seen)

	// The signed-out token no longer verifies.
	_, _, err := env.auth.VerifyAccessToken(context.Background(), token)
	assert.Error(t, err)
}

func TestIdentity_SignInWithToken(t *testing.T) {
	env := newSessionEnv(t)
	p := env.signIn(t, "ada@example.com")
	token := env.identity.Token()

	other := NewIdentity(env.auth, testLogger)
	restored, err := other.SignInWithToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, restored.ID)
	assert.Equal(t, token, other.Token())
}

func TestSession_FollowsIdentity(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	session := NewSession(env.identity, env.repo, SessionOptions{}, testLogger)
	defer session.Close()

	view := session.View()
	assert.Empty(t, view.OwnerID())
	assert.Equal(t, EmptyNoPrompts, view.EmptyState())

	ada := env.signIn(t, "ada@example.com")
	assert.Equal(t, ada.ID, view.OwnerID())

	require.NoError(t, env.repo.Create(ctx, ada.ID, "Summarize the article", "ai"))
	require.NoError(t, env.repo.Create(ctx, ada.ID, "Refactor this React component", "react, css , "))
	require.Eventually(t, func() bool { return len(view.Prompts()) == 2 }, waitFor, tick)

	assert.Equal(t, []string{"Refactor this React component", "Summarize the article"}, texts(view.Prompts()))

	view.SetSearchTerm("ai")
	assert.Equal(t, []string{"Summarize the article"}, texts(view.Visible()))
	assert.Len(t, view.Prompts(), 2)

	view.SetSearchTerm("python")
	assert.Empty(t, view.Visible())
	assert.Equal(t, EmptyNoMatches, view.EmptyState())

	// Signing out tears the subscription down and clears the list.
	env.identity.SignOut()
	assert.Empty(t, view.OwnerID())
	assert.Empty(t, view.Prompts())

	require.NoError(t, env.repo.Create(ctx, ada.ID, "while signed out", ""))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, view.Prompts())
	assert.Eventually(t, func() bool { return env.feed.ListenerCount() == 0 }, waitFor, tick)
}

func TestSession_SwitchUser(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	session := NewSession(env.identity, env.repo, SessionOptions{}, testLogger)
	defer session.Close()

	ada := env.signIn(t, "ada@example.com")
	require.NoError(t, env.repo.Create(ctx, ada.ID, "ada's", ""))
	require.Eventually(t, func() bool { return len(session.View().Prompts()) == 1 }, waitFor, tick)

	bob := env.signIn(t, "bob@example.com")
	assert.Equal(t, bob.ID, session.View().OwnerID())
	require.Eventually(t, func() bool { return session.View().Err() == nil }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, session.View().Prompts())
}

func TestSession_ConfirmedDeleteUpdatesOnNextSnapshot(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()

	var asked []string
	confirm := ConfirmFunc(func(_ context.Context, p *domain.Prompt) (bool, error) {
		asked = append(asked, p.ID)
		return true, nil
	})
	session := NewSession(env.identity, env.repo, SessionOptions{Confirmer: confirm}, testLogger)
	defer session.Close()

	ada := env.signIn(t, "ada@example.com")
	require.NoError(t, env.repo.Create(ctx, ada.ID, "one", ""))
	require.NoError(t, env.repo.Create(ctx, ada.ID, "two", ""))
	view := session.View()
	require.Eventually(t, func() bool { return len(view.Prompts()) == 2 }, waitFor, tick)

	newest := view.Prompts()[0]
	deleted, err := session.RequestDelete(ctx, newest.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{newest.ID}, asked)

	require.Eventually(t, func() bool { return len(view.Prompts()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"one"}, texts(view.Prompts()))
}

func TestSession_DeclinedDeleteDoesNothing(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	decline := ConfirmFunc(func(context.Context, *domain.Prompt) (bool, error) { return false, nil })
	session := NewSession(env.identity, env.repo, SessionOptions{Confirmer: decline}, testLogger)
	defer session.Close()

	ada := env.signIn(t, "ada@example.com")
	require.NoError(t, env.repo.Create(ctx, ada.ID, "keep me", ""))
	require.Eventually(t, func() bool { return len(session.View().Prompts()) == 1 }, waitFor, tick)

	deleted, err := session.RequestDelete(ctx, session.View().Prompts()[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, deletes := env.docs.counts()
	assert.Zero(t, deletes)

	_, err = session.RequestDelete(ctx, "prm_unknown")
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}

func TestSession_ConfirmerErrorAborts(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	boom := errors.New("terminal closed")
	session := NewSession(env.identity, env.repo, SessionOptions{
		Confirmer: ConfirmFunc(func(context.Context, *domain.Prompt) (bool, error) { return false, boom }),
	}, testLogger)
	defer session.Close()

	ada := env.signIn(t, "ada@example.com")
	require.NoError(t, env.repo.Create(ctx, ada.ID, "x", ""))
	require.Eventually(t, func() bool { return len(session.View().Prompts()) == 1 }, waitFor, tick)

	_, err := session.RequestDelete(ctx, session.View().Prompts()[0].ID)
	assert.ErrorIs(t, err, boom)
}

func TestSession_Copy(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	clip := &memClipboard{}
	session := NewSession(env.identity, env.repo, SessionOptions{Clipboard: clip}, testLogger)
	defer session.Close()

	ada := env.signIn(t, "ada@example.com")
	require.NoError(t, env.repo.Create(ctx, ada.ID, "copy this", "x"))
	require.Eventually(t, func() bool { return len(session.View().Prompts()) == 1 }, waitFor, tick)

	before := session.View().Prompts()
	require.NoError(t, session.Copy(before[0].ID))
	assert.Equal(t, "copy this", clip.Text())
	assert.Equal(t, before, session.View().Prompts())

	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(session.Copy("prm_unknown")))
}

func TestSession_FormSubmit(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	session := NewSession(env.identity, env.repo, SessionOptions{}, testLogger)
	defer session.Close()
	env.signIn(t, "ada@example.com")

	form := session.Form()
	form.SetText("   ")
	form.SetTags("ai")
	err := form.Submit(ctx)
	assert.Equal(t, domainerrors.CodeValidation, domainerrors.CodeOf(err))
	assert.Equal(t, "   ", form.Text())
	assert.Equal(t, "ai", form.Tags())
	inserts, _ := env.docs.counts()
	assert.Zero(t, inserts)

	form.SetText("a real prompt")
	require.NoError(t, form.Submit(ctx))
	assert.Empty(t, form.Text())
	assert.Empty(t, form.Tags())
	assert.False(t, form.Submitting())

	require.Eventually(t, func() bool { return len(session.View().Prompts()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"ai"}, session.View().Prompts()[0].Tags)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	env := newSessionEnv(t)
	session := NewSession(env.identity, env.repo, SessionOptions{}, testLogger)
	env.signIn(t, "ada@example.com")

	session.Close()
	session.Close()

	assert.Empty(t, session.View().OwnerID())
	assert.Eventually(t, func() bool { return env.feed.ListenerCount() == 0 }, waitFor, tick)

	// Later identity changes no longer reach the view.
	env.signIn(t, "bob@example.com")
	assert.Empty(t, session.View().OwnerID())
}

// pushedCommands records commands and only changes the list when the test
// pushes a snapshot.
type pushedCommands struct {
	mu         sync.Mutex
	onSnapshot func([]*domain.Prompt)
	initial    []*domain.Prompt
	removed    []string
	created    []string
}

func (c *pushedCommands) Subscribe(_ string, onSnapshot func([]*domain.Prompt), _ func(error)) error {
	c.mu.Lock()
	c.onSnapshot = onSnapshot
	initial := c.initial
	c.mu.Unlock()
	onSnapshot(initial)
	return nil
}

func (c *pushedCommands) Unsubscribe() {
	c.mu.Lock()
	c.onSnapshot = nil
	c.mu.Unlock()
}

func (c *pushedCommands) Create(_ context.Context, _, text, _ string) error {
	c.mu.Lock()
	c.created = append(c.created, text)
	c.mu.Unlock()
	return nil
}

func (c *pushedCommands) Remove(_ context.Context, promptID string) error {
	c.mu.Lock()
	c.removed = append(c.removed, promptID)
	c.mu.Unlock()
	return nil
}

func (c *pushedCommands) push(prompts ...*domain.Prompt) {
	c.mu.Lock()
	fn := c.onSnapshot
	c.mu.Unlock()
	if fn != nil {
		fn(prompts)
	}
}

func TestSession_DeleteWaitsForSnapshot(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	p1 := &domain.Prompt{ID: "1", Text: "one"}
	p2 := &domain.Prompt{ID: "2", Text: "two"}
	cmds := &pushedCommands{initial: []*domain.Prompt{p2, p1}}
	always := ConfirmFunc(func(context.Context, *domain.Prompt) (bool, error) { return true, nil })
	session := NewSession(env.identity, cmds, SessionOptions{Confirmer: always}, testLogger)
	defer session.Close()

	env.signIn(t, "ada@example.com")
	view := session.View()
	require.Equal(t, []string{"2", "1"}, ids(view.Prompts()))

	deleted, err := session.RequestDelete(ctx, "2")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"2"}, cmds.removed)
	assert.Equal(t, []string{"2", "1"}, ids(view.Prompts()))

	cmds.push(p1)
	assert.Equal(t, []string{"1"}, ids(view.Prompts()))
}

func TestSession_CreateWaitsForSnapshot(t *testing.T) {
	env := newSessionEnv(t)
	ctx := context.Background()
	p1 := &domain.Prompt{ID: "1", Text: "one"}
	cmds := &pushedCommands{initial: []*domain.Prompt{p1}}
	session := NewSession(env.identity, cmds, SessionOptions{}, testLogger)
	defer session.Close()

	env.signIn(t, "ada@example.com")
	view := session.View()

	form := session.Form()
	form.SetText("two")
	require.NoError(t, form.Submit(ctx))
	assert.Equal(t, []string{"two"}, cmds.created)
	assert.Equal(t, []string{"1"}, ids(view.Prompts()))

	cmds.push(&domain.Prompt{ID: "2", Text: "two"}, p1)
	assert.Equal(t, []string{"2", "1"}, ids(view.Prompts()))
}
