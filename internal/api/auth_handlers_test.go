package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":    "Ada@Example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[AuthResponse](t, resp)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data.AccessToken)
	assert.Equal(t, "Bearer", env.Data.TokenType)
	assert.Equal(t, "Ada", env.Data.User.DisplayName)
	assert.NotEmpty(t, env.Data.User.ID)
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ada@example.com")

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":    "ada@example.com",
		"password": "another password",
	})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeEnvelope[any](t, resp).Code)
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":    "ada@example.com",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	env := decodeEnvelope[any](t, resp)
	assert.Equal(t, "VALIDATION", env.Code)
	assert.Equal(t, map[string]any{"password": "must be at least 8 characters"}, env.Details)
}

func TestRegister_MissingField(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{"email": "ada@example.com"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "VALIDATION", decodeEnvelope[any](t, resp).Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ada@example.com")

	resp := ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, decodeEnvelope[AuthResponse](t, resp).Data.AccessToken)

	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "wrong horse",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeEnvelope[any](t, resp).Code)
}

func TestCurrentUserAndLogout(t *testing.T) {
	ts := newTestServer(t)
	token, userID := ts.register(t, "ada@example.com")

	resp := ts.api.Get("/api/v1/users/me")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Get("/api/v1/users/me", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code)
	me := decodeEnvelope[UserResponse](t, resp).Data
	assert.Equal(t, userID, me.ID)
	assert.Equal(t, "ada@example.com", me.Email)

	resp = ts.api.Post("/api/v1/auth/logout", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code)

	// The token is revoked.
	resp = ts.api.Get("/api/v1/users/me", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestLogout_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.api.Post("/api/v1/auth/logout")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope[any](t, resp).Code)
}
