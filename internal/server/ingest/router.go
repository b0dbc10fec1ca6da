package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/server/registry"
)

// Store is the persistence the ingest handler writes through.
type Store interface {
	Insert(ctx context.Context, n *model.Notification) (bool, error)
}

type Handler struct {
	store  Store
	hub    registry.Hubber
	logger *slog.Logger
}

func NewHandler(store Store, hub registry.Hubber, logger *slog.Logger) *Handler {
	return &Handler{store: store, hub: hub, logger: logger}
}

// Handle persists a created notification and pushes it to the recipient's
// live sessions. Undecodable messages are acked; store failures are retried.
func (h *Handler) Handle(msg *message.Message) (err error) {
	// [PANIC_RECOVERY]
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("PANIC_RECOVERED",
				"err", r,
				"stack", string(debug.Stack()),
				"msg_id", msg.UUID)
			err = fmt.Errorf("ingest: panic: %v", r)
		}
	}()

	n := new(model.Notification)
	if err := json.Unmarshal(msg.Payload, n); err != nil {
		h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
		return nil // ACK: poison pill
	}
	if n.UserID == "" {
		n.UserID = msg.Metadata.Get(metaUserID)
	}
	if n.UserID == "" {
		h.logger.Warn("ROUTING_FAILED: recipient_missing", "msg_id", msg.UUID)
		return nil
	}

	inserted, err := h.store.Insert(msg.Context(), n)
	if err != nil {
		return err // NACK: retry policy
	}
	if !inserted {
		h.logger.Debug("DUPLICATE_SKIPPED", "id", n.ID, "msg_id", msg.UUID)
		return nil
	}

	// [LOCALITY] offline users read it from history later
	if !h.hub.IsConnected(n.UserID) {
		return nil
	}
	if !h.hub.Broadcast(registry.NewNotificationPush(n)) {
		h.logger.Warn("PUSH_DROPPED", "user_id", n.UserID, "id", n.ID)
	}
	return nil
}

// NewRouter wires the handler onto sub with the retry/poison pipeline.
func NewRouter(bus *Bus, h *Handler, logger *slog.Logger, wlogger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("ingest: router: %w", err)
	}

	poison, err := middleware.PoisonQueue(bus.Publisher, TopicPoison)
	if err != nil {
		return nil, fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	router.AddConsumerHandler("ON_NOTIFICATION_CREATED", TopicCreated, bus.Subscriber, h.Handle).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(logger),
		poison,
		NewRetryMiddleware().Middleware,
		middleware.Timeout(30*time.Second),
	)

	logger.Info("INGEST_PIPELINE_READY", "topic", TopicCreated)
	return router, nil
}
