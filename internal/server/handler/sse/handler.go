// Package sse serves the push-stream endpoint of the development server.
package sse

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/server/handler/marshaller"
	"github.com/webitel/im-live-notify/internal/server/registry"
	ssewire "github.com/webitel/im-live-notify/internal/transport/sse"
)

const sessionBuffer = 64

type Handler struct {
	hub       *registry.Hub
	logger    *slog.Logger
	heartbeat time.Duration
	clock     clockwork.Clock
}

func NewHandler(hub *registry.Hub, logger *slog.Logger, heartbeat time.Duration, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{hub: hub, logger: logger, heartbeat: heartbeat, clock: clock}
}

// ServeHTTP holds the stream open: a connected frame first, then pushes and
// periodic heartbeats until the client leaves or the hub shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := h.hub.Subscribe(r.Context(), userID, sessionBuffer)
	defer h.hub.Unregister(userID, conn.GetID())
	defer conn.Close()

	log := h.logger.With("user_id", userID, "conn_id", conn.GetID())
	log.Info("[SSE] stream opened")
	defer log.Info("[SSE] stream closed")

	enc := ssewire.NewEncoder(w)

	hello, err := marshaller.StreamConnected(conn.GetID().String())
	if err == nil {
		err = enc.Encode(hello)
	}
	if err != nil {
		log.Warn("[SSE] connected frame failed", "err", err)
		return
	}

	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case now := <-ticker.Chan():
			f, err := marshaller.StreamHeartbeat(now)
			if err != nil {
				log.Error("[SSE] heartbeat marshal failed", "err", err)
				continue
			}
			if err := enc.Encode(f); err != nil {
				log.Debug("[SSE] heartbeat write failed", "err", err)
				return
			}

		case p, ok := <-conn.Recv():
			if !ok {
				return
			}
			f, ok, err := marshaller.StreamPush(p)
			if err != nil {
				log.Error("[SSE] push marshal failed", "err", err)
				continue
			}
			if !ok {
				continue
			}
			if err := enc.Encode(f); err != nil {
				log.Warn("[SSE] push write failed", "err", err)
				return
			}
		}
	}
}
