package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault-server/internal/auth"
	"github.com/promptvault/promptvault-server/internal/metrics"
	"github.com/promptvault/promptvault-server/internal/search"
	"github.com/promptvault/promptvault-server/internal/service"
	"github.com/promptvault/promptvault-server/internal/sse"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/store/sqlite"
	"github.com/promptvault/promptvault-server/internal/validation"
)

var testLogger = slog.New(slog.DiscardHandler)

// testEnvelope mirrors response.Envelope with a typed payload.
type testEnvelope[T any] struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details"`
}

func decodeEnvelope[T any](t *testing.T, resp *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), "body: %s", resp.Body.String())
	return env
}

type testServer struct {
	*Server
	api     humatest.TestAPI
	backend *sqlite.Store
	metrics *metrics.Collector
}

// stepClock advances one second per call so inserts are strictly ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestServer(t *testing.T, configure ...func(*Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	backend, err := sqlite.Open(filepath.Join(dir, "test.db"), testLogger)
	require.NoError(t, err)

	feed := sse.NewManager(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go feed.Start(ctx)

	collector := metrics.NewCollector()
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	docs := store.NewDocuments(backend, feed, testLogger,
		store.WithClock(clock.Now),
		store.WithObserver(collector),
	)

	index, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(dir, "search"), Logger: testLogger})
	require.NoError(t, err)
	searchService := service.NewSearchService(index, backend, testLogger)
	docs.SetSearchIndexer(searchService)

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{9}, auth.KeySize), time.Hour)
	require.NoError(t, err)
	validator := validation.New()
	authService := service.NewAuthService(backend, tokens, validator, testLogger)
	authService.SetPasswordParams(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	retry := service.RetryPolicy{Attempts: 1, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	repo := service.NewPromptRepository(docs, retry, testLogger)
	repo.SetCommandObserver(collector)
	prompts := service.NewPromptService(docs, repo, service.NewTokenConfirmer(time.Minute), validator, testLogger)

	cfg := Config{
		Heartbeat:     time.Hour,
		Retry:         retry,
		AuthPerSecond: 1000,
		AuthBurst:     1000,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	s := NewServer(docs, feed, &Services{Auth: authService, Prompts: prompts, Search: searchService}, collector, cfg, testLogger)

	t.Cleanup(func() {
		s.Close()
		cancel()
		_ = feed.Shutdown(context.Background())
		_ = index.Close()
		_ = backend.Close()
	})

	return &testServer{
		Server:  s,
		api:     humatest.Wrap(t, s.API()),
		backend: backend,
		metrics: collector,
	}
}

// register creates an account and returns its token and user ID.
func (ts *testServer) register(t *testing.T, email string) (token, userID string) {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":        email,
		"password":     "correct horse",
		"display_name": "Ada",
	})
	require.Equal(t, http.StatusOK, resp.Code, "register failed: %s", resp.Body.String())

	env := decodeEnvelope[AuthResponse](t, resp)
	return env.Data.AccessToken, env.Data.User.ID
}

func bearer(token string) string {
	return "Authorization: Bearer " + token
}

func (ts *testServer) createPrompt(t *testing.T, token, text, tags string) {
	t.Helper()
	resp := ts.api.Post("/api/v1/prompts", bearer(token), map[string]any{"text": text, "tags": tags})
	require.Equal(t, http.StatusAccepted, resp.Code, "create failed: %s", resp.Body.String())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decodeEnvelope[HealthResponse](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.V)
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "healthy", env.Data.Components["database"].Status)
	assert.Equal(t, "0 documents", env.Data.Components["search"].Message)
	assert.Equal(t, "no live queries", env.Data.Components["feed"].Message)
}

func TestHealthCheck_SearchDisabled(t *testing.T) {
	ts := newTestServer(t)
	ts.services.Search = nil

	env := decodeEnvelope[HealthResponse](t, ts.api.Get("/health"))
	assert.Equal(t, "degraded", env.Data.Status)
	assert.Equal(t, "search disabled", env.Data.Components["search"].Message)
}

func TestEnvelopeTransformer(t *testing.T) {
	out, err := EnvelopeTransformer(nil, "200", map[string]string{"id": "p-1"})
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"success":true,"data":{"id":"p-1"}}`, string(raw))

	out, err = EnvelopeTransformer(nil, "404", &APIError{status: 404, Code: "NOT_FOUND", Message: "prompt not found"})
	require.NoError(t, err)
	raw, err = json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"success":false,"error":"prompt not found","code":"NOT_FOUND"}`, string(raw))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.api.Get("/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.AuthPerSecond = 0.001
		c.AuthBurst = 2
	})

	body := map[string]any{"email": "ada@example.com", "password": "wrong password"}
	for range 2 {
		resp := ts.api.Post("/api/v1/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	resp := ts.api.Post("/api/v1/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	env := decodeEnvelope[any](t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "RATE_LIMITED", env.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "ada@example.com")
	ts.createPrompt(t, token, "Summarize", "ai")

	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.Commands.WithLabelValues("create", "ok")))

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "promptvault_http_requests_total")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("route=%q", "/api/v1/prompts"))
}
