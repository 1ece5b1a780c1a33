// Package main provides the entry point for the PromptVault server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/promptvault/promptvault-server/internal/di"
	"github.com/promptvault/promptvault-server/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// Handles shut down in reverse dependency order: HTTP server, watcher,
	// search index, store, change feed.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Server stopped")
}

// bootstrap turns provider panics from MustInvoke into an error.
func bootstrap(injector *do.RootScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return di.Bootstrap(injector)
}
