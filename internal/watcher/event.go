package watcher

import "time"

// EventType represents the type of file system event
type EventType int

const (
	// EventModified is emitted when watched files changed (after settling)
	EventModified EventType = iota
	// EventRemoved is emitted when a watched file is deleted
	EventRemoved
)

// String returns the string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one settled burst of changes.
type Event struct {
	Type EventType

	// Paths lists every file touched during the burst, in first-seen order.
	Paths []string

	// At is when the burst settled.
	At time.Time
}
