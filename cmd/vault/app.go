package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/promptvault/promptvault-server/internal/auth"
	"github.com/promptvault/promptvault-server/internal/config"
	"github.com/promptvault/promptvault-server/internal/logger"
	"github.com/promptvault/promptvault-server/internal/service"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/store/badgerdb"
	"github.com/promptvault/promptvault-server/internal/store/sqlite"
	"github.com/promptvault/promptvault-server/internal/validation"
)

// tokenFile holds the last access token inside the data directory.
const tokenFile = "vault.token"

// app is everything a command needs: the store stack and a session.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend store.Backend
	feed    *sse.Manager
	auth    *service.AuthService
	session *service.Session

	cancelFeed context.CancelFunc
}

// openApp opens the data directory. The session is signed out until
// signIn is called.
func openApp(ctx context.Context, opts service.SessionOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configArgs())
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Writer:      stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}).Logger

	key, err := auth.LoadOrGenerateKey(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService(key, cfg.Auth.AccessTokenDuration)
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	if cfg.Store.Backend == config.BackendBadger {
		backend, err = badgerdb.Open(cfg.Store.Path, log)
	} else {
		backend, err = sqlite.Open(cfg.Store.Path, log)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	feed := sse.NewManager(log)
	feedCtx, cancel := context.WithCancel(ctx)
	go feed.Start(feedCtx)

	docs := store.NewDocuments(backend, feed, log)
	authService := service.NewAuthService(backend, tokens, validation.New(), log)
	repo := service.NewPromptRepository(docs, service.RetryPolicy{
		Attempts: cfg.Sync.RetryAttempts,
		Delay:    cfg.Sync.RetryDelay,
		MaxDelay: cfg.Sync.RetryMaxDelay,
	}, log)
	session := service.NewSession(service.NewIdentity(authService, log), repo, opts, log)

	return &app{
		cfg:        cfg,
		logger:     log,
		backend:    backend,
		feed:       feed,
		auth:       authService,
		session:    session,
		cancelFeed: cancel,
	}, nil
}

// Close tears the session down before the store it reads from.
func (a *app) Close() {
	a.session.Close()
	a.cancelFeed()
	_ = a.feed.Shutdown(context.Background())
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

// signIn prefers explicit credentials and falls back to the saved token.
func (a *app) signIn(ctx context.Context) error {
	identity := a.session.Identity()

	if email != "" {
		if _, err := identity.SignIn(ctx, service.Credentials{Email: email, Password: password}); err != nil {
			return err
		}
		a.saveToken(identity.Token())
		return nil
	}

	token, err := a.loadToken()
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("not signed in: pass --email and --password or set PROMPTVAULT_EMAIL")
	}
	if _, err := identity.SignInWithToken(ctx, token); err != nil {
		return fmt.Errorf("saved session is no longer valid, sign in again: %w", err)
	}
	return nil
}

func (a *app) tokenPath() string {
	return filepath.Join(a.cfg.Data.Dir, tokenFile)
}

func (a *app) loadToken() (string, error) {
	//#nosec G304 -- token path is derived from the configured data dir
	raw, err := os.ReadFile(a.tokenPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read saved token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (a *app) saveToken(token string) {
	if err := os.WriteFile(a.tokenPath(), []byte(token), 0o600); err != nil {
		a.logger.Warn("could not save token", "error", err)
	}
}

// waitLoaded blocks until the live view holds its first snapshot or fails.
func waitLoaded(ctx context.Context, view *service.LiveView) error {
	for {
		if err := view.Err(); err != nil {
			return err
		}
		if view.Loaded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-view.Updates():
		}
	}
}
