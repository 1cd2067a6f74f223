package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

// EventProducer publishes persisted chat mutations to the event stream.
type EventProducer interface {
	ProduceEvent(ctx context.Context, event *domain.ChatEvent) error
	Close() error
}
