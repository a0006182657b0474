// Package bus provides event bus implementations for verdict events.
package bus

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// New creates an event bus from configuration. The "none" type returns nil.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil

	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

type metadataKey struct{}

// WithMetadata returns a context whose published messages carry md.
func WithMetadata(ctx context.Context, md map[string]string) context.Context {
	merged := make(map[string]string)
	if existing, ok := ctx.Value(metadataKey{}).(map[string]string); ok {
		maps.Copy(merged, existing)
	}
	maps.Copy(merged, md)
	return context.WithValue(ctx, metadataKey{}, merged)
}

func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	md := make(map[string]string)
	if existing, ok := ctx.Value(metadataKey{}).(map[string]string); ok {
		maps.Copy(md, existing)
	}
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  md,
		Timestamp: time.Now().UnixNano(),
	}
}
