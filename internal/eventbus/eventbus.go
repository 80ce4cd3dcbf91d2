// Package eventbus publishes lifecycle domain events over watermill. The
// in-process gochannel transport is the default; NATS core is used when
// configured so other services can subscribe.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	nc "github.com/nats-io/nats.go"

	"github.com/hackcrew/hackathon-platform/internal/config"
)

const (
	TopicHackathonCancelled = "hackathon.cancelled"
	TopicHackathonCompleted = "hackathon.completed"
)

// HackathonCancelled is published after a cancellation commits.
type HackathonCancelled struct {
	HackathonID  uuid.UUID `json:"hackathon_id"`
	Name         string    `json:"name"`
	Reason       string    `json:"reason"`
	CancelledAt  time.Time `json:"cancelled_at"`
	Compensating bool      `json:"compensating"`
}

// HackathonCompleted is published after a completion commits.
type HackathonCompleted struct {
	HackathonID uuid.UUID `json:"hackathon_id"`
	Name        string    `json:"name"`
	Teams       int64     `json:"teams"`
	CompletedAt time.Time `json:"completed_at"`
}

type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// New wraps an existing watermill publisher. subscriber may be nil.
func New(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Bus {
	return &Bus{publisher: publisher, subscriber: subscriber, logger: logger.With("component", "eventbus")}
}

// NewGoChannel builds an in-process bus that can also be subscribed to.
func NewGoChannel(logger *slog.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger))
	return New(pubSub, pubSub, logger)
}

// NewNATS connects a publisher to a NATS core server.
func NewNATS(url string, logger *slog.Logger) (*Bus, error) {
	publisher, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL: url,
		NatsOptions: []nc.Option{
			nc.Name("hackathon-lifecycle"),
			nc.RetryOnFailedConnect(true),
			nc.MaxReconnects(-1),
			nc.ReconnectWait(2 * time.Second),
		},
		Marshaler: &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{Disabled: true},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return New(publisher, nil, logger), nil
}

// FromConfig picks the transport named by cfg.EventBus.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Bus, error) {
	switch cfg.EventBus {
	case "nats":
		return NewNATS(cfg.NATSURL, logger)
	default:
		return NewGoChannel(logger), nil
	}
}

// Publish encodes payload as JSON and sends it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.logger.Debug("event_published", "topic", topic, "message_id", msg.UUID)
	return nil
}

// Subscribe returns the message stream for topic when the transport
// supports in-process subscriptions.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b.subscriber == nil {
		return nil, errors.New("event bus transport does not support subscriptions")
	}
	return b.subscriber.Subscribe(ctx, topic)
}

// LogEvents logs every message on topics until ctx ends. It gives operators
// a trace of domain events when nothing else is listening in process.
func (b *Bus) LogEvents(ctx context.Context, topics ...string) error {
	for _, topic := range topics {
		messages, err := b.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go func(topic string) {
			for msg := range messages {
				b.logger.Info("event_received", "topic", topic, "message_id", msg.UUID, "payload", string(msg.Payload))
				msg.Ack()
			}
		}(topic)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.publisher.Close()
}
