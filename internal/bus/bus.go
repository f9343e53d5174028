// Package bus is the process-wide publish/subscribe stream used for auth
// events and user notices. It wraps an in-memory watermill pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Bus publishes JSON encoded values to in-process subscribers.
// Publish blocks until every current subscriber has handled the message,
// so listeners observe events in publish order.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{BlockPublishUntilSubscriberAck: true},
			watermill.NewSlogLogger(logger),
		),
		logger: logger,
	}
}

// Publish encodes v as JSON and delivers it on topic.
func (b *Bus) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Handler processes one message. Returned errors are logged; the message is
// acknowledged either way.
type Handler func(ctx context.Context, msg *message.Message) error

// Listener is a registered handler. Close unregisters it.
type Listener struct {
	topic  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Listen registers handle for topic until ctx ends or the listener is closed.
// Messages are handled one at a time in publish order.
func (b *Bus) Listen(ctx context.Context, topic string, handle Handler) (*Listener, error) {
	ctx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	l := &Listener{topic: topic, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		for msg := range msgs {
			if err := handle(ctx, msg); err != nil {
				b.logger.Warn("bus handler failed", "topic", topic, "message_uuid", msg.UUID, "error", err)
			}
			msg.Ack()
		}
	}()

	b.logger.Debug("bus listener registered", "topic", topic)
	return l, nil
}

// Close unregisters the listener and waits for an in-flight handler.
// Must not be called from inside the listener's own handler.
func (l *Listener) Close() {
	l.cancel()
	<-l.done
}

// Close shuts the bus down. Further publishes fail.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return v, nil
}
