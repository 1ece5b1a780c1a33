package sse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/promptvault/promptvault-server/internal/id"
	"github.com/promptvault/promptvault-server/internal/store"
)

const (
	eventBufferSize    = 1000
	listenerBufferSize = 16
)

// Listener is a registered change consumer. It implements store.ChangeListener.
type Listener struct {
	ConnectedAt time.Time
	ID          string
	// OwnerID filters delivery. Empty means "receive all".
	OwnerID string

	ch      chan store.Change
	manager *Manager
}

// Changes returns the delivery channel. It is closed on Close or shutdown.
func (l *Listener) Changes() <-chan store.Change {
	return l.ch
}

// Close unregisters the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.manager.disconnect(l.ID)
}

// Manager fans store changes out to owner-filtered listeners.
// It implements store.ChangeFeed.
type Manager struct {
	listeners map[string]*Listener
	events    chan store.Change
	logger    *slog.Logger
	wg        sync.WaitGroup
	mu        sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool

	// Unix nanos of the last change published for a write made by this
	// process.
	lastLocal atomic.Int64
}

var _ store.ChangeFeed = (*Manager)(nil)

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		listeners: make(map[string]*Listener),
		events:    make(chan store.Change, eventBufferSize),
		logger:    logger,
	}
}

// Start runs the broadcast loop until ctx is canceled or Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("change feed starting")

	for {
		select {
		case change, ok := <-m.events:
			if !ok {
				return
			}
			m.broadcast(change)

		case <-ctx.Done():
			m.logger.Info("change feed stopping")
			m.closeAllListeners()
			return
		}
	}
}

// Shutdown stops accepting changes, drains what is queued and closes every
// listener. Live queries then end with store.ErrClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("change feed shutdown initiated")

	// Close under the write lock so Publish never sends on a closed channel.
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for change := range m.events {
			m.broadcast(change)
		}
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("change feed drained")
	case <-ctx.Done():
		m.logger.Warn("change feed drain timeout, some changes may be lost")
	}

	m.wg.Wait()
	m.closeAllListeners()

	m.logger.Info("change feed shutdown complete")
	return nil
}

// Publish queues a change for delivery. It never blocks.
func (m *Manager) Publish(change store.Change) {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}
	if change.Op != store.ChangeExternal {
		m.lastLocal.Store(time.Now().UnixNano())
	}

	select {
	case m.events <- change:
	default:
		m.logger.Error("change feed full, dropping change",
			slog.String("op", string(change.Op)),
			slog.String("owner_id", change.OwnerID))
	}
}

// LastLocalChange returns when a write made by this process was last
// published, or the zero time if none was.
func (m *Manager) LastLocalChange() time.Time {
	n := m.lastLocal.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Listen registers a listener for ownerID's changes. Changes with an empty
// OwnerID are delivered to every listener.
func (m *Manager) Listen(ownerID string) (store.ChangeListener, error) {
	m.shutdownMu.RLock()
	closed := m.shutdown
	m.shutdownMu.RUnlock()
	if closed {
		return nil, store.ErrClosed
	}

	listenerID, err := id.Generate(id.PrefixListener)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		ID:          listenerID,
		OwnerID:     ownerID,
		ConnectedAt: time.Now(),
		ch:          make(chan store.Change, listenerBufferSize),
		manager:     m,
	}

	m.mu.Lock()
	m.listeners[l.ID] = l
	total := len(m.listeners)
	m.mu.Unlock()

	m.logger.Debug("change listener registered",
		slog.String("listener_id", listenerID),
		slog.String("owner_id", ownerID),
		slog.Int("total_listeners", total))
	return l, nil
}

// ListenerCount returns the number of registered listeners.
func (m *Manager) ListenerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

// broadcast delivers a change to matching listeners. A full listener buffer
// already guarantees a pending re-query, so dropping is safe.
func (m *Manager) broadcast(change store.Change) {
	var delivered, dropped, filtered int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.listeners {
		if change.OwnerID != "" && l.OwnerID != "" && change.OwnerID != l.OwnerID {
			filtered++
			continue
		}

		select {
		case l.ch <- change:
			delivered++
		default:
			dropped++
		}
	}

	m.logger.Debug("change broadcast",
		slog.String("op", string(change.Op)),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("filtered", filtered),
			slog.Int("coalesced", dropped)))
}

func (m *Manager) disconnect(listenerID string) {
	m.mu.Lock()
	l, ok := m.listeners[listenerID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.listeners, listenerID)
	total := len(m.listeners)
	m.mu.Unlock()

	close(l.ch)

	m.logger.Debug("change listener removed",
		slog.String("listener_id", listenerID),
		slog.Duration("duration", time.Since(l.ConnectedAt)),
		slog.Int("total_listeners", total))
}

func (m *Manager) closeAllListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.listeners {
		close(l.ch)
	}
	m.listeners = make(map[string]*Listener)
}
