package providers

import (
	"github.com/samber/do/v2"

	"github.com/promptvault/promptvault-server/internal/auth"
	"github.com/promptvault/promptvault-server/internal/config"
	"github.com/promptvault/promptvault-server/internal/logger"
	"github.com/promptvault/promptvault-server/internal/metrics"
	"github.com/promptvault/promptvault-server/internal/service"
	"github.com/promptvault/promptvault-server/internal/validation"
)

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Backend(), tokenService, validator, log.Component("auth")), nil
}

// retryPolicy maps the sync config onto the repository's resubscribe policy.
func retryPolicy(cfg *config.Config) service.RetryPolicy {
	return service.RetryPolicy{
		Attempts: cfg.Sync.RetryAttempts,
		Delay:    cfg.Sync.RetryDelay,
		MaxDelay: cfg.Sync.RetryMaxDelay,
	}
}

// ProvidePromptRepository provides the server-wide repository used for
// one-shot commands. Live queries get a repository per connection.
func ProvidePromptRepository(i do.Injector) (*service.PromptRepository, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	collector := do.MustInvoke[*metrics.Collector](i)
	log := do.MustInvoke[*logger.Logger](i)

	repo := service.NewPromptRepository(storeHandle.Documents, retryPolicy(cfg), log.Component("prompts"))
	repo.SetCommandObserver(collector)
	return repo, nil
}

// ProvideTokenConfirmer provides the delete confirmation token issuer.
func ProvideTokenConfirmer(i do.Injector) (*service.TokenConfirmer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return service.NewTokenConfirmer(cfg.Auth.DeleteConfirmTTL), nil
}

// ProvidePromptService provides the prompt service.
func ProvidePromptService(i do.Injector) (*service.PromptService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	repo := do.MustInvoke[*service.PromptRepository](i)
	confirmer := do.MustInvoke[*service.TokenConfirmer](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewPromptService(storeHandle.Documents, repo, confirmer, validator, log.Component("prompts")), nil
}
