package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/moving-hub/moving-hub/internal/domain/chat"
	"github.com/moving-hub/moving-hub/internal/domain/notification"
	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
	"github.com/moving-hub/moving-hub/internal/infrastructure/realtime"
	"github.com/moving-hub/moving-hub/internal/reconcile"
)

const (
	sseKeepAlive    = 25 * time.Second
	syncLimit       = 200
	wsConnectedWait = 5 * time.Second
)

// sync returns the caller's authoritative state for reconciliation.
func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	requests, err := s.engine.ListRequests(r.Context(), auth.UserID, auth.Role, nil, syncLimit, 0)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	chats, err := s.chatSvc.ListChats(r.Context(), auth.UserID, syncLimit, 0)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	snap := reconcile.Snapshot{Requests: requests, Chats: chats}
	if snap.Requests == nil {
		snap.Requests = []*servicerequest.ServiceRequest{}
	}
	if snap.Chats == nil {
		snap.Chats = []*chat.Chat{}
	}
	respondJSON(w, http.StatusOK, snap)
}

// sseStream streams the caller's events as server-sent events until the
// client goes away or the connection is dropped by the dispatcher.
func (s *Server) sseStream(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	conn := realtime.NewSSEConnection(auth.UserID, s.sseBuffer)
	s.registry.Register(auth.UserID, conn)
	defer s.registry.Unregister(auth.UserID, conn)
	log := s.logger.With().Str("user_id", auth.UserID.String()).Str("connection_id", conn.ID()).Logger()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello, err := notification.NewEvent(notification.EventTypeConnected, auth.UserID, notification.ConnectedPayload{
		ConnectionID: conn.ID(),
		Reconcile:    true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build connected event")
		return
	}
	if err := realtime.WriteSSE(w, hello); err != nil {
		return
	}
	flusher.Flush()
	log.Debug().Msg("sse connected")

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case evt := <-conn.Events():
			if err := realtime.WriteSSE(w, evt); err != nil {
				log.Debug().Err(err).Msg("sse write failed")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-conn.Done():
			return
		case <-ctx.Done():
			log.Debug().Msg("sse disconnected")
			return
		}
	}
}

// wsStream upgrades to a WebSocket and pushes the caller's events as JSON
// text messages. Messages from the client are not expected.
func (s *Server) wsStream(w http.ResponseWriter, r *http.Request) {
	auth := authUserFromContext(r.Context())
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket handshake failed")
		return
	}
	conn := realtime.NewWSConnection(auth.UserID, c)
	log := s.logger.With().Str("user_id", auth.UserID.String()).Str("connection_id", conn.ID()).Logger()
	ctx := c.CloseRead(context.Background())

	hello, err := notification.NewEvent(notification.EventTypeConnected, auth.UserID, notification.ConnectedPayload{
		ConnectionID: conn.ID(),
		Reconcile:    true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build connected event")
		conn.Close()
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, wsConnectedWait)
	err = conn.Send(sendCtx, hello)
	cancel()
	if err != nil {
		log.Debug().Err(err).Msg("websocket connected frame failed")
		conn.Close()
		return
	}

	s.registry.Register(auth.UserID, conn)
	defer s.registry.Unregister(auth.UserID, conn)
	log.Debug().Msg("websocket connected")

	select {
	case <-ctx.Done():
		log.Debug().Msg("websocket disconnected")
	case <-conn.Done():
	}
}
