package domain

import (
	"context"
	"time"
)

// Topics carrying verdict events.
const (
	// TopicPredictionScored carries a JSON PredictionRecord for every verdict.
	TopicPredictionScored = "fraudguard.prediction.scored"

	// TopicRecurringFraud carries a JSON RecurringAlert.
	TopicRecurringFraud = "fraudguard.alert.recurring"
)

// Message is one event as delivered to a handler.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// MessageHandler consumes one message. A returned error is logged by the
// bus; the subscription stays active.
type MessageHandler func(ctx context.Context, msg *Message) error

// EventBus moves verdict events from the scoring path to background
// consumers. Publishing never blocks a prediction.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live handler registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	// Type is "channel" (in process), "nats" or "none".
	Type string `koanf:"type"`

	// ChannelBufferSize bounds each in-process subscription queue.
	ChannelBufferSize int `koanf:"channel_buffer_size"`

	NATSUrl           string `koanf:"nats_url"`
	NATSToken         string `koanf:"nats_token"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup, when set, makes replicas share each topic so every
	// verdict is audited by exactly one of them.
	NATSQueueGroup string `koanf:"nats_queue_group"`
}

// ReconnectWait returns the NATS reconnect delay, defaulting to 5s.
func (c EventBusConfig) ReconnectWait() time.Duration {
	if c.NATSReconnectWait <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.NATSReconnectWait) * time.Second
}
