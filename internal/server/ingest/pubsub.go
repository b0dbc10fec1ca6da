// Package ingest moves created notifications from the message bus into the
// history store and out to live sessions.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

const (
	TopicCreated = "notification.created"
	TopicPoison  = "notification.created.poison"

	queueSuffix = "im-live-notify"
)

// Bus is the publisher/subscriber pair the ingest router runs on.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (b *Bus) Close() error {
	err := b.Publisher.Close()
	// the in-process channel is both ends
	if any(b.Subscriber) != any(b.Publisher) {
		err = errors.Join(err, b.Subscriber.Close())
	}
	return err
}

// NewBus connects to the AMQP broker at url, or builds an in-process channel
// when url is empty.
func NewBus(url string, logger watermill.LoggerAdapter) (*Bus, error) {
	if url == "" {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{Publisher: ch, Subscriber: ch}, nil
	}

	cfg := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))

	pub, err := amqp.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	sub, err := amqp.NewSubscriber(cfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("amqp subscriber: %w", err)
	}
	return &Bus{Publisher: pub, Subscriber: sub}, nil
}

// Dispatcher defines the contract for submitting new notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *model.Notification) error
}

var _ Dispatcher = (*publisher)(nil)

type publisher struct {
	pub    message.Publisher
	logger *slog.Logger
}

func NewDispatcher(pub message.Publisher, logger *slog.Logger) Dispatcher {
	return &publisher{pub: pub, logger: logger}
}

func (d *publisher) Dispatch(ctx context.Context, n *model.Notification) error {
	if n == nil || n.UserID == "" {
		return errors.New("dispatch: notification without recipient")
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("dispatch: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaUserID, n.UserID)
	msg.SetContext(ctx)

	if err := d.pub.Publish(TopicCreated, msg); err != nil {
		return fmt.Errorf("dispatch: publish to %s: %w", TopicCreated, err)
	}

	d.logger.Debug("NOTIFICATION_DISPATCHED", "msg_id", msg.UUID, "user_id", n.UserID)
	return nil
}
