package pubsub

import "fmt"

// Channel naming for community chat fan-out. Every gateway instance
// subscribes to the pattern and delivers to its local connections.
const (
	ChannelRoomToGateway = "chat:room:%s:to_gateway"
	PatternRoomToGateway = "chat:room:*:to_gateway"
)

// RoomChannel returns the channel carrying events for one community room.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomToGateway, roomID)
}
