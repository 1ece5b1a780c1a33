package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	// Prefix limits events to files whose base name starts with it, e.g.
	// "promptvault.db" also matches "promptvault.db-wal". Empty matches all.
	Prefix         string
	IgnorePatterns []string
	SettleDelay    time.Duration
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 250 * time.Millisecond
	}
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"Thumbs.db",
		}
	}
}

// shouldIgnore checks if a path is outside the watched set.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if o.Prefix != "" && !strings.HasPrefix(base, o.Prefix) {
		return true
	}
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}
	return false
}
