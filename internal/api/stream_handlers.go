package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/http/response"
	"github.com/promptvault/promptvault-server/internal/service"
	"github.com/promptvault/promptvault-server/internal/sse"
)

// StreamConnected is the payload of the first event on a prompt stream.
type StreamConnected struct {
	UserID string `json:"user_id"`
	Term   string `json:"term,omitempty"`
}

// StreamError is the payload of a subscription error event.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handlePromptStream serves GET /api/v1/prompts/stream as Server-Sent Events.
// Each connection gets its own session and live view; a snapshot event is
// sent after every store snapshot and whenever the view's state changes.
// The token may be passed as ?token= for EventSource clients that cannot
// set headers.
func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.With("request_id", middleware.GetReqID(ctx))

	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		response.Unauthorized(w, "Authentication required", logger)
		return
	}

	identity := service.NewIdentity(s.services.Auth, logger)
	profile, err := identity.SignInWithToken(ctx, token)
	if err != nil {
		response.HandleError(w, err, logger)
		return
	}
	logger = logger.With("user_id", profile.ID)

	repo := service.NewPromptRepository(s.docs, s.cfg.Retry, logger)
	if s.metrics != nil {
		repo.SetCommandObserver(s.metrics)
	}
	session := service.NewSession(identity, repo, service.SessionOptions{}, logger)
	defer session.Close()

	view := session.View()
	term := r.URL.Query().Get("q")
	view.SetSearchTerm(term)

	stream, err := sse.Open(w, logger)
	if err != nil {
		logger.Error("failed to open stream", "error", err)
		response.HandleError(w, domainerrors.Internal("streaming unsupported"), logger)
		return
	}

	if s.metrics != nil {
		s.metrics.StreamClients.Inc()
		defer s.metrics.StreamClients.Dec()
	}
	logger.Info("prompt stream connected", "term", term)
	defer logger.Info("prompt stream disconnected")

	if err := stream.Send(sse.NewEvent(sse.EventConnected, StreamConnected{UserID: profile.ID, Term: term})); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-view.Updates():
			event, ok := viewEvent(view)
			if !ok {
				continue
			}
			if err := stream.Send(event); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}

		case <-heartbeat.C:
			if err := stream.Send(sse.NewHeartbeatEvent()); err != nil {
				logger.Debug("heartbeat write failed", "error", err)
				return
			}
		}
	}
}

// viewEvent renders the view's current state. Nothing is sent before the
// first snapshot so clients never see a transient empty list.
func viewEvent(view *service.LiveView) (sse.Event, bool) {
	if err := view.Err(); err != nil {
		code := domainerrors.CodeUnavailable
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			code = domainErr.Code
		}
		return sse.NewEvent(sse.EventSubscriptionError, StreamError{
			Code:    string(code),
			Message: err.Error(),
		}), true
	}
	if !view.Loaded() {
		return sse.Event{}, false
	}
	return sse.NewEvent(sse.EventSnapshot, mapPromptList(view.Snapshot())), true
}
