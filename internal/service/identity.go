package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/promptvault/promptvault-server/internal/auth"
	"github.com/promptvault/promptvault-server/internal/domain"
)

// Credentials identify an account at sign-in.
type Credentials struct {
	Email    string
	Password string
}

// Authenticator is the account backend behind an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	VerifyAccessToken(ctx context.Context, token string) (*domain.User, *auth.AccessClaims, error)
	Logout(claims *auth.AccessClaims)
}

// Identity tracks the signed-in user of one client session and notifies
// watchers whenever it changes.
type Identity struct {
	authn  Authenticator
	logger *slog.Logger

	// opMu serialises sign-in, sign-out and watcher notification so
	// watchers observe transitions in order.
	opMu sync.Mutex

	mu       sync.RWMutex
	current  *domain.Profile
	token    string
	claims   *auth.AccessClaims
	watchers map[int]func(*domain.Profile)
	nextID   int
}

// NewIdentity creates a signed-out identity.
func NewIdentity(authn Authenticator, logger *slog.Logger) *Identity {
	return &Identity{
		authn:    authn,
		logger:   logger,
		watchers: make(map[int]func(*domain.Profile)),
	}
}

// SignIn authenticates with credentials. On failure the current user is
// left unchanged.
func (i *Identity) SignIn(ctx context.Context, creds Credentials) (*domain.Profile, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	resp, err := i.authn.Authenticate(ctx, LoginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		i.logger.Warn("sign-in failed", "error", err)
		return nil, err
	}

	_, claims, err := i.authn.VerifyAccessToken(ctx, resp.AccessToken)
	if err != nil {
		return nil, err
	}

	i.set(resp.User, resp.AccessToken, claims)
	return resp.User, nil
}

// SignInWithToken restores a session from a previously issued token.
func (i *Identity) SignInWithToken(ctx context.Context, token string) (*domain.Profile, error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	user, claims, err := i.authn.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	profile := user.Profile()
	i.set(profile, token, claims)
	return profile, nil
}

// SignOut clears the current user and revokes its token.
func (i *Identity) SignOut() {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.RLock()
	claims := i.claims
	signedIn := i.current != nil
	i.mu.RUnlock()
	if !signedIn {
		return
	}

	i.authn.Logout(claims)
	i.set(nil, "", nil)
}

// Current returns the signed-in user, or nil.
func (i *Identity) Current() *domain.Profile {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current
}

// Token returns the access token of the signed-in user.
func (i *Identity) Token() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.token
}

// Watch registers fn for identity changes and calls it once with the
// current value. The returned function removes the watcher.
func (i *Identity) Watch(fn func(*domain.Profile)) (cancel func()) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	watchID := i.nextID
	i.nextID++
	i.watchers[watchID] = fn
	current := i.current
	i.mu.Unlock()

	fn(current)

	return func() {
		i.mu.Lock()
		delete(i.watchers, watchID)
		i.mu.Unlock()
	}
}

// set must be called with opMu held.
func (i *Identity) set(profile *domain.Profile, token string, claims *auth.AccessClaims) {
	i.mu.Lock()
	i.current = profile
	i.token = token
	i.claims = claims
	watchers := make([]func(*domain.Profile), 0, len(i.watchers))
	for _, fn := range i.watchers {
		watchers = append(watchers, fn)
	}
	i.mu.Unlock()

	if profile != nil {
		i.logger.Debug("identity changed", "user_id", profile.ID)
	} else {
		i.logger.Debug("identity cleared")
	}

	for _, fn := range watchers {
		fn(profile)
	}
}
