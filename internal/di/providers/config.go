// Package providers contains dependency injection providers for the PromptVault server.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/promptvault/promptvault-server/internal/config"
	"github.com/promptvault/promptvault-server/internal/logger"
	"github.com/promptvault/promptvault-server/internal/metrics"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(os.Args[1:])
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting PromptVault Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_dir", cfg.Data.Dir,
		"store", cfg.Store.Backend,
	)

	return log, nil
}

// ProvideMetrics provides the Prometheus collector.
func ProvideMetrics(i do.Injector) (*metrics.Collector, error) {
	return metrics.NewCollector(), nil
}
