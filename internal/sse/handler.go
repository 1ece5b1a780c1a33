package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

const writeDeadline = 60 * time.Second

// Stream writes SSE events to one HTTP response.
type Stream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
}

// Open sets the SSE headers and flushes them.
func Open(w http.ResponseWriter, logger *slog.Logger) (*Stream, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamingUnsupported, err)
	}
	return &Stream{w: w, rc: rc, logger: logger}, nil
}

// Send writes one event and flushes it.
//
//	event: <type>
//	data: <json>
func (s *Stream) Send(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}

	// SetWriteDeadline is not supported by every ResponseWriter.
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		s.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
