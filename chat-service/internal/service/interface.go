package service

import (
	"context"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
)

// Broadcaster fans events out to the connections joined to a room.
type Broadcaster interface {
	Join(connID, roomID string) bool
	Leave(connID, roomID string) bool
	Publish(ctx context.Context, roomID string, event interface{}, exclude string) error
}

// ConnectionRegistry maps authenticated users to their live connection.
type ConnectionRegistry interface {
	BindUser(client *hub.Client, userID string) *hub.Client
}

// ChatService is the connection lifecycle state machine behind the
// WebSocket endpoint.
type ChatService interface {
	HandleAuth(ctx context.Context, client *hub.Client, msg *domain.AuthenticateMessage) error
	HandleJoinCommunity(ctx context.Context, client *hub.Client, communityID string) error
	HandleLeaveCommunity(ctx context.Context, client *hub.Client, communityID string) error
	HandleSendMessage(ctx context.Context, client *hub.Client, msg *domain.SendMessageMessage) error
	HandleEditMessage(ctx context.Context, client *hub.Client, msg *domain.EditMessageMessage) error
	HandleDeleteMessage(ctx context.Context, client *hub.Client, messageID string) error
	HandleAddReaction(ctx context.Context, client *hub.Client, msg *domain.ReactionMessage) error
	HandleRemoveReaction(ctx context.Context, client *hub.Client, msg *domain.ReactionMessage) error
	HandleTyping(ctx context.Context, client *hub.Client, communityID string, typing bool) error
	HandlePing(ctx context.Context, client *hub.Client) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
}
