package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/promptvault/promptvault-server/internal/config"
	"github.com/promptvault/promptvault-server/internal/logger"
	"github.com/promptvault/promptvault-server/internal/metrics"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/store/badgerdb"
	"github.com/promptvault/promptvault-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the change feed with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the change feed that drives live queries.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("Change feed started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the document store and its backend with shutdown capability.
type StoreHandle struct {
	*store.Documents
	backend store.Backend
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.backend.Close()
}

// ProvideStore opens the configured backend and wraps it in the document store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	collector := do.MustInvoke[*metrics.Collector](i)

	if err := os.MkdirAll(cfg.Data.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	backend, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "backend", cfg.Store.Backend, "path", cfg.Store.Path)

	docs := store.NewDocuments(backend, sseHandle.Manager, log.Logger, store.WithObserver(collector))
	return &StoreHandle{Documents: docs, backend: backend}, nil
}

func openBackend(cfg *config.Config, log *logger.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		return badgerdb.Open(cfg.Store.Path, log.Logger)
	default:
		return sqlite.Open(cfg.Store.Path, log.Logger)
	}
}
