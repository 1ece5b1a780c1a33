// Package sse carries PromptVault's change notifications: the in-process
// change feed behind live queries and the Server-Sent Events stream that
// pushes snapshots to HTTP clients.
package sse

import "time"

// EventType names an SSE event.
type EventType string

const (
	// EventConnected is sent once when a stream opens.
	EventConnected EventType = "connected"
	// EventSnapshot carries the filtered prompt list after each store snapshot.
	EventSnapshot EventType = "prompts.snapshot"
	// EventSubscriptionError reports a live query failure.
	EventSubscriptionError EventType = "prompts.error"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a single SSE message.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return NewEvent(EventHeartbeat, nil)
}
