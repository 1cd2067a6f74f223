package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/pubsub"
)

// BusBroadcaster routes room events through a shared bus so every gateway
// instance delivers them to its own connections. Joins and leaves stay
// local to the hub.
type BusBroadcaster struct {
	hub    *Hub
	bus    pubsub.PubSub
	origin string
}

func NewBusBroadcaster(h *Hub, bus pubsub.PubSub, origin string) *BusBroadcaster {
	return &BusBroadcaster{
		hub:    h,
		bus:    bus,
		origin: origin,
	}
}

func (b *BusBroadcaster) Join(connID, roomID string) bool {
	return b.hub.Join(connID, roomID)
}

func (b *BusBroadcaster) Leave(connID, roomID string) bool {
	return b.hub.Leave(connID, roomID)
}

// Publish sends the event to the room's bus channel. Local delivery happens
// when the relay receives it back.
func (b *BusBroadcaster) Publish(ctx context.Context, roomID string, event interface{}, exclude string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	evt := pubsub.NewRawEvent(eventType(data), roomID, data)
	evt.Exclude = exclude
	evt.Origin = b.origin
	if err := b.bus.Publish(ctx, pubsub.RoomChannel(roomID), evt); err != nil {
		return fmt.Errorf("failed to publish to bus: %w", err)
	}
	return nil
}

// Relay subscribes to every room channel and hands received events to the
// local hub until ctx is cancelled or the subscription closes.
func (b *BusBroadcaster) Relay(ctx context.Context) error {
	events, err := b.bus.SubscribePattern(ctx, pubsub.PatternRoomToGateway)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room channels: %w", err)
	}

	go func() {
		l := log.L()
		for evt := range events {
			if evt == nil || evt.RoomID == "" {
				continue
			}
			if err := b.hub.PublishRaw(ctx, evt.RoomID, evt.Type, evt.Payload, evt.Exclude); err != nil {
				l.Debug().Err(err).Str(log.FieldCommunityID, evt.RoomID).Msg("relay stopped")
				return
			}
		}
		l.Info().Msg("bus relay closed")
	}()
	return nil
}

// Close releases the bus.
func (b *BusBroadcaster) Close() error {
	return b.bus.Close()
}
