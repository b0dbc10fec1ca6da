// Package ws serves the socket endpoint of the development server.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/server/handler/marshaller"
	"github.com/webitel/im-live-notify/internal/server/registry"
	wswire "github.com/webitel/im-live-notify/internal/transport/ws"
)

const (
	sessionBuffer = 64
	writeTimeout  = 10 * time.Second
)

type Handler struct {
	hub       *registry.Hub
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	ping      time.Duration
	clock     clockwork.Clock
}

func NewHandler(hub *registry.Hub, logger *slog.Logger, heartbeat, ping time.Duration, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // development server
		},
		heartbeat: heartbeat,
		ping:      ping,
		clock:     clock,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("[WS] upgrade failed", "err", err)
		return
	}
	defer sock.Close()

	conn := h.hub.Subscribe(r.Context(), userID, sessionBuffer)
	defer h.hub.Unregister(userID, conn.GetID())
	defer conn.Close()

	log := h.logger.With("user_id", userID, "conn_id", conn.GetID())
	log.Info("[WS] socket opened")

	// [SINGLE_WRITER] the reader hands control replies to this goroutine
	control := make(chan wswire.Message, 8)
	readerDone := make(chan struct{})
	go h.read(sock, control, readerDone, log)

	hello, err := marshaller.SocketConnected(conn.GetID().String())
	if err == nil {
		err = write(sock, hello)
	}
	if err != nil {
		log.Warn("[WS] connected message failed", "err", err)
		return
	}

	heartbeat := h.clock.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	ping := h.clock.NewTicker(h.ping)
	defer ping.Stop()

	for {
		select {
		case <-readerDone:
			log.Info("[WS] socket closed by client")
			return

		case msg := <-control:
			if err := write(sock, msg); err != nil {
				return
			}

		case now := <-ping.Chan():
			if err := write(sock, marshaller.SocketPing(now)); err != nil {
				return
			}

		case now := <-heartbeat.Chan():
			msg, err := marshaller.SocketHeartbeat(now)
			if err != nil {
				continue
			}
			if err := write(sock, msg); err != nil {
				return
			}

		case p, ok := <-conn.Recv():
			if !ok {
				// [SHUTDOWN] going-away lets clients reconnect to the next instance
				log.Info("[WS] closing socket on shutdown")
				closeSocket(sock, websocket.CloseGoingAway, "server shutting down")
				return
			}
			msg, err := marshaller.SocketPush(p)
			if err != nil {
				log.Error("[WS] push marshal failed", "err", err)
				continue
			}
			if err := write(sock, msg); err != nil {
				log.Warn("[WS] push write failed", "err", err)
				return
			}
		}
	}
}

func (h *Handler) read(sock *websocket.Conn, control chan<- wswire.Message, done chan<- struct{}, log *slog.Logger) {
	defer close(done)

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("[WS] read ended", "err", err)
			}
			return
		}

		var msg wswire.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			select {
			case control <- marshaller.SocketError("malformed message"):
			default:
			}
			continue
		}

		switch msg.Type {
		case wswire.TypePing:
			select {
			case control <- marshaller.SocketPong(h.clock.Now()):
			default:
			}
		case wswire.TypePong:
		default:
			log.Debug("[WS] client message ignored", "type", msg.Type)
		}
	}
}

func write(sock *websocket.Conn, msg wswire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := sock.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return sock.WriteMessage(websocket.TextMessage, data)
}

func closeSocket(sock *websocket.Conn, code int, reason string) {
	_ = sock.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
}
