package api

import (
	"github.com/promptvault/promptvault-server/internal/service"
)

// Services groups the business logic services used by the API server.
type Services struct {
	Auth    *service.AuthService
	Prompts *service.PromptService
	Search  *service.SearchService // nil when search is disabled
}
