package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/promptvault/promptvault-server/internal/store"
)

// Publisher receives store changes and reports when this process last
// published one of its own writes.
type Publisher interface {
	Publish(change store.Change)
	LastLocalChange() time.Time
}

// Relay publishes a broadcast ChangeExternal for every settled burst until
// ctx is cancelled or the watcher stops. The change carries no owner, so
// every live query re-runs.
//
// A burst that settles within quiet of a local write is taken to be that
// write's own file activity and is dropped; the local write already
// published its change. A zero quiet relays every burst.
func Relay(ctx context.Context, w *Watcher, feed Publisher, quiet time.Duration, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ownWrite(feed.LastLocalChange(), ev.At, quiet) {
				logger.Debug("ignoring file activity from local write", "type", ev.Type.String())
				continue
			}
			logger.Debug("database files changed", "type", ev.Type.String(), "paths", len(ev.Paths))
			feed.Publish(store.Change{Op: store.ChangeExternal, At: ev.At})
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

func ownWrite(lastLocal, at time.Time, quiet time.Duration) bool {
	if quiet <= 0 || lastLocal.IsZero() {
		return false
	}
	return at.Sub(lastLocal) <= quiet
}
