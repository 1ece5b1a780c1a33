// Package config loads PromptVault configuration from command-line flags,
// environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Auth      AuthConfig
	Store     StoreConfig
	Search    SearchConfig
	Sync      SyncConfig
	Watch     WatchConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json, pretty or empty for auto
}

// DataConfig locates everything the server writes to disk.
type DataConfig struct {
	Dir string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // 0 keeps SSE streams open
	IdleTimeout  time.Duration
	CORSOrigins  []string
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key, set by auth.LoadOrGenerateKey at startup.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
	// DeleteConfirmTTL bounds how long a delete confirmation token stays valid.
	DeleteConfirmTTL time.Duration
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend string
	// Path defaults to {data}/promptvault.db or {data}/badger.
	Path string
}

// SearchConfig configures the full-text index.
type SearchConfig struct {
	Enabled bool
	Path    string // defaults to {data}/search
}

// SyncConfig controls how a dropped subscription is re-established.
type SyncConfig struct {
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// WatchConfig controls external change detection on the database directory.
type WatchConfig struct {
	Enabled  bool
	Debounce time.Duration
}

// RateLimitConfig limits the unauthenticated auth endpoints per client IP.
type RateLimitConfig struct {
	AuthPerSecond float64
	AuthBurst     int
}

// Load builds a Config from args (without the program name) with precedence:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func Load(args []string) (*Config, error) {
	fsFlags := flag.NewFlagSet("promptvault", flag.ContinueOnError)
	fsFlags.SetOutput(io.Discard)

	env := fsFlags.String("env", "", "Environment (development, staging, production)")
	logLevel := fsFlags.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fsFlags.String("log-format", "", "Log format (json, pretty)")
	dataDir := fsFlags.String("data-dir", "", "Directory for the database, keys and search index")
	host := fsFlags.String("host", "", "Listen host")
	port := fsFlags.String("port", "", "Server port (default: 8080)")
	readTimeout := fsFlags.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fsFlags.String("write-timeout", "", "HTTP write timeout (default: 0, unlimited)")
	idleTimeout := fsFlags.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fsFlags.String("cors-origins", "", "Comma separated allowed origins")
	heartbeat := fsFlags.String("heartbeat", "", "SSE heartbeat interval (default: 30s)")
	accessTokenDuration := fsFlags.String("access-token-duration", "", "Access token lifetime (default: 24h)")
	deleteConfirmTTL := fsFlags.String("delete-confirm-ttl", "", "Delete confirmation token lifetime (default: 2m)")
	backend := fsFlags.String("store", "", "Store backend (sqlite, badger)")
	storePath := fsFlags.String("store-path", "", "Store location")
	searchEnabled := fsFlags.String("search", "", "Enable the full-text index (default: true)")
	searchPath := fsFlags.String("search-path", "", "Search index location")
	retryAttempts := fsFlags.String("sync-retry-attempts", "", "Resubscribe attempts after a subscription error (default: 5)")
	retryDelay := fsFlags.String("sync-retry-delay", "", "Initial resubscribe delay (default: 500ms)")
	retryMaxDelay := fsFlags.String("sync-retry-max-delay", "", "Maximum resubscribe delay (default: 30s)")
	watchEnabled := fsFlags.String("watch", "", "Detect writes from other processes (default: true)")
	watchDebounce := fsFlags.String("watch-debounce", "", "Debounce for external change detection (default: 250ms)")
	envFile := fsFlags.String("env-file", ".env", "Path to .env file")

	if err := fsFlags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Data: DataConfig{
			Dir: getConfigValue(*dataDir, "DATA_DIR", ""),
		},
		Server: ServerConfig{
			Host:        getConfigValue(*host, "SERVER_HOST", ""),
			Port:        getConfigValue(*port, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getConfigValue(*backend, "STORE_BACKEND", BackendSQLite)),
			Path:    getConfigValue(*storePath, "STORE_PATH", ""),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
			Path:    getConfigValue(*searchPath, "SEARCH_PATH", ""),
		},
		Sync: SyncConfig{
			RetryAttempts: uint(getIntConfigValue(*retryAttempts, "SYNC_RETRY_ATTEMPTS", 5)),
		},
		Watch: WatchConfig{
			Enabled: getBoolConfigValue(*watchEnabled, "WATCH_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			AuthPerSecond: 1,
			AuthBurst:     10,
		},
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*heartbeat, "SSE_HEARTBEAT", "30s", &cfg.Server.Heartbeat},
		{*accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h", &cfg.Auth.AccessTokenDuration},
		{*deleteConfirmTTL, "DELETE_CONFIRM_TTL", "2m", &cfg.Auth.DeleteConfirmTTL},
		{*retryDelay, "SYNC_RETRY_DELAY", "500ms", &cfg.Sync.RetryDelay},
		{*retryMaxDelay, "SYNC_RETRY_MAX_DELAY", "30s", &cfg.Sync.RetryMaxDelay},
		{*watchDebounce, "WATCH_DEBOUNCE", "250ms", &cfg.Watch.Debounce},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	case "":
		return errors.New("ENV is required")
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	if c.Data.Dir == "" {
		return errors.New("data directory cannot be empty after expansion")
	}

	switch c.Store.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("invalid store backend: %s (must be sqlite or badger)", c.Store.Backend)
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Server.Port, err)
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}
	if c.Auth.DeleteConfirmTTL <= 0 {
		return errors.New("delete confirmation ttl must be positive")
	}

	if c.Sync.RetryMaxDelay < c.Sync.RetryDelay {
		return fmt.Errorf("sync retry max delay %s is below the initial delay %s", c.Sync.RetryMaxDelay, c.Sync.RetryDelay)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// WatchActive reports whether external change detection can run. Badger
// holds an exclusive lock, so only SQLite can be written by another process.
func (c *Config) WatchActive() bool {
	return c.Watch.Enabled && c.Store.Backend == BackendSQLite
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dir, err := expandPath(c.Data.Dir, filepath.Join(homeDir, ".promptvault"))
	if err != nil {
		return err
	}
	c.Data.Dir = dir

	storeDefault := filepath.Join(dir, "promptvault.db")
	if c.Store.Backend == BackendBadger {
		storeDefault = filepath.Join(dir, "badger")
	}
	if c.Store.Path, err = expandPath(c.Store.Path, storeDefault); err != nil {
		return err
	}

	if c.Search.Path, err = expandPath(c.Search.Path, filepath.Join(dir, "search")); err != nil {
		return err
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned as is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	switch strings.ToLower(strValue) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strValue)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
