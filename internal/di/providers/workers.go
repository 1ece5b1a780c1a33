package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/promptvault/promptvault-server/internal/config"
	"github.com/promptvault/promptvault-server/internal/logger"
	"github.com/promptvault/promptvault-server/internal/watcher"
)

// FileWatcherHandle wraps the database file watcher with shutdown capability.
// Watcher is nil when external change detection is off.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideFileWatcher watches the SQLite files so writes made by other
// processes re-run every live query.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	// The database file must exist before its directory is watched.
	_ = do.MustInvoke[*StoreHandle](i)

	if !cfg.WatchActive() {
		log.Info("External change detection disabled", "store", cfg.Store.Backend)
		return &FileWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Component("watcher"), watcher.Options{
		Prefix:      filepath.Base(cfg.Store.Path),
		SettleDelay: cfg.Watch.Debounce,
	})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(cfg.Store.Path); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("File watcher stopped", "error", err)
		}
	}()
	// Bursts settling within two debounce periods of a local write are that
	// write's own WAL activity.
	go watcher.Relay(ctx, w, sseHandle.Manager, 2*cfg.Watch.Debounce, log.Component("watcher"))

	log.Info("Watching database for external changes", "path", cfg.Store.Path)

	return &FileWatcherHandle{Watcher: w, cancel: cancel}, nil
}
