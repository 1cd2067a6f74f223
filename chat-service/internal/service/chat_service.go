package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-community/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/middleware"
)

type chatService struct {
	validator   middleware.TokenValidator
	registry    ConnectionRegistry
	broadcaster Broadcaster
	guard       *MembershipGuard
	presence    *presence.Tracker
	messages    *MessageService
}

func NewChatService(
	validator middleware.TokenValidator,
	registry ConnectionRegistry,
	broadcaster Broadcaster,
	guard *MembershipGuard,
	tracker *presence.Tracker,
	messages *MessageService,
) ChatService {
	return &chatService{
		validator:   validator,
		registry:    registry,
		broadcaster: broadcaster,
		guard:       guard,
		presence:    tracker,
		messages:    messages,
	}
}

// reject turns a failure into an error event on the connection and hands
// the error back for logging.
func reject(c *hub.Client, err error) error {
	c.SendMessage(ToErrorMessage(err))
	return err
}

func (s *chatService) HandleAuth(ctx context.Context, c *hub.Client, msg *domain.AuthenticateMessage) error {
	claims, err := s.validator.ValidateToken(msg.Token)
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, msg.UserID, err.Error(), "authentication failed")
		c.SendMessage(&domain.AuthenticationErrorMessage{
			Type:    domain.MsgTypeAuthenticationError,
			Message: "invalid or expired token",
		})
		return errors.Join(ErrAuthentication, err)
	}
	if msg.UserID != "" && msg.UserID != claims.UserID {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, msg.UserID, "user mismatch", "authentication failed")
		c.SendMessage(&domain.AuthenticationErrorMessage{
			Type:    domain.MsgTypeAuthenticationError,
			Message: "token does not belong to this user",
		})
		return ErrAuthentication
	}

	// Switching identity on a live connection first releases the rooms
	// joined as the previous user.
	if prev := c.Session.GetUserID(); prev != "" && prev != claims.UserID {
		s.leaveAll(ctx, c)
	}

	c.Session.Authenticate(claims.UserID, claims.Username)
	c.BindLogFields(log.FieldUserID, claims.UserID)
	if old := s.registry.BindUser(c, claims.UserID); old != nil {
		l := log.Ctx(ctx)
		l.Info().Str("superseded_connection", old.ID).Msg("connection superseded by reconnect")
	}

	audit.Log(ctx, audit.ActionAuth, claims.UserID, "connection authenticated")
	return c.SendMessage(&domain.AuthenticatedMessage{
		Type:     domain.MsgTypeAuthenticated,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

func (s *chatService) HandleJoinCommunity(ctx context.Context, c *hub.Client, communityID string) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	userID := c.Session.GetUserID()

	ok, err := s.guard.IsMember(ctx, communityID, userID)
	if err != nil {
		return reject(c, err)
	}
	if !ok {
		audit.LogTarget(ctx, audit.ActionJoinDenied, userID, communityID, "join denied")
		return reject(c, ErrForbidden)
	}

	if err := s.presence.MarkOnline(ctx, communityID, userID, c.ID); err != nil {
		return reject(c, transient(err))
	}
	fresh := c.Session.JoinCommunity(communityID)
	s.broadcaster.Join(c.ID, communityID)

	c.SendMessage(&domain.CommunityEventMessage{
		Type:        domain.MsgTypeJoinedCommunity,
		CommunityID: communityID,
	})

	online, err := s.presence.Online(ctx, communityID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to load online users")
		online = nil
	}
	if online != nil {
		c.SendMessage(&domain.OnlineUsersMessage{
			Type:        domain.MsgTypeOnlineUsersUpdated,
			CommunityID: communityID,
			Users:       online,
		})
	}

	if fresh {
		s.publish(ctx, communityID, &domain.UserEventMessage{
			Type:        domain.MsgTypeUserJoined,
			UserID:      userID,
			CommunityID: communityID,
		}, c.ID)
		if online != nil {
			s.publish(ctx, communityID, &domain.OnlineUsersMessage{
				Type:        domain.MsgTypeOnlineUsersUpdated,
				CommunityID: communityID,
				Users:       online,
			}, c.ID)
		}
		audit.LogTarget(ctx, audit.ActionJoinCommunity, userID, communityID, "joined community")
	}
	return nil
}

func (s *chatService) HandleLeaveCommunity(ctx context.Context, c *hub.Client, communityID string) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if !c.Session.IsInCommunity(communityID) {
		return reject(c, ErrNotInCommunity)
	}

	err := s.leave(ctx, c, communityID)
	c.SendMessage(&domain.CommunityEventMessage{
		Type:        domain.MsgTypeLeftCommunity,
		CommunityID: communityID,
	})
	audit.LogTarget(ctx, audit.ActionLeaveCommunity, c.Session.GetUserID(), communityID, "left community")
	return err
}

// leave drops the connection from the room and its presence, then tells
// the remaining members. user_left goes out only when this connection
// still owned the presence row; the snapshot always does.
func (s *chatService) leave(ctx context.Context, c *hub.Client, communityID string) error {
	userID := c.Session.GetUserID()
	c.Session.LeaveCommunity(communityID)
	s.broadcaster.Leave(c.ID, communityID)

	removed, err := s.presence.MarkOffline(ctx, communityID, userID, c.ID)
	if err != nil {
		return transient(err)
	}
	if removed {
		s.publish(ctx, communityID, &domain.UserEventMessage{
			Type:        domain.MsgTypeUserLeft,
			UserID:      userID,
			CommunityID: communityID,
		}, c.ID)
	}

	online, err := s.presence.Online(ctx, communityID)
	if err != nil {
		return transient(err)
	}
	s.publish(ctx, communityID, &domain.OnlineUsersMessage{
		Type:        domain.MsgTypeOnlineUsersUpdated,
		CommunityID: communityID,
		Users:       online,
	}, c.ID)
	return nil
}

// leaveAll cleans up every joined room independently; one failure does
// not stop the others.
func (s *chatService) leaveAll(ctx context.Context, c *hub.Client) {
	for _, communityID := range c.Session.Communities() {
		if err := s.leave(ctx, c, communityID); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to clean up room")
		}
	}
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageMessage) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	_, err := s.messages.Send(ctx, c.Session.GetUserID(), domain.SendMessageInput{
		CommunityID: msg.CommunityID,
		Content:     msg.Content,
		Kind:        domain.MessageKind(msg.MessageType),
		FileRef:     msg.FileURL,
		ReplyTo:     msg.ReplyTo,
	})
	if err != nil {
		return reject(c, err)
	}
	return nil
}

func (s *chatService) HandleEditMessage(ctx context.Context, c *hub.Client, msg *domain.EditMessageMessage) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if _, err := s.messages.Edit(ctx, c.Session.GetUserID(), msg.MessageID, msg.Content); err != nil {
		return reject(c, err)
	}
	return nil
}

func (s *chatService) HandleDeleteMessage(ctx context.Context, c *hub.Client, messageID string) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if err := s.messages.Delete(ctx, c.Session.GetUserID(), messageID); err != nil {
		return reject(c, err)
	}
	return nil
}

func (s *chatService) HandleAddReaction(ctx context.Context, c *hub.Client, msg *domain.ReactionMessage) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if _, err := s.messages.AddReaction(ctx, c.Session.GetUserID(), msg.MessageID, msg.Emoji); err != nil {
		return reject(c, err)
	}
	return nil
}

func (s *chatService) HandleRemoveReaction(ctx context.Context, c *hub.Client, msg *domain.ReactionMessage) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if _, err := s.messages.RemoveReaction(ctx, c.Session.GetUserID(), msg.MessageID, msg.Emoji); err != nil {
		return reject(c, err)
	}
	return nil
}

// HandleTyping relays a typing signal to the room. It is best-effort: no
// store access, only the connection's own join-set is checked.
func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, communityID string, typing bool) error {
	if !c.Session.IsAuthenticated() {
		return reject(c, ErrNotAuthenticated)
	}
	if !c.Session.IsInCommunity(communityID) {
		return reject(c, ErrNotInCommunity)
	}

	msgType := domain.MsgTypeUserStopTyping
	if typing {
		msgType = domain.MsgTypeUserTyping
	}
	s.publish(ctx, communityID, &domain.UserEventMessage{
		Type:        msgType,
		UserID:      c.Session.GetUserID(),
		CommunityID: communityID,
	}, c.ID)
	return nil
}

// HandlePing renews presence in every joined room and answers pong.
func (s *chatService) HandlePing(ctx context.Context, c *hub.Client) error {
	if c.Session.IsAuthenticated() {
		userID := c.Session.GetUserID()
		for _, communityID := range c.Session.Communities() {
			if err := s.presence.Renew(ctx, communityID, userID, c.ID); err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to renew presence")
			}
		}
	}
	return c.SendMessage(&domain.BaseMessage{Type: domain.MsgTypePong})
}

// HandleDisconnect runs after the transport closed, abruptly or not.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if !c.Session.IsAuthenticated() {
		return nil
	}
	s.leaveAll(ctx, c)
	audit.Log(ctx, audit.ActionDisconnect, c.Session.GetUserID(), "connection closed")
	return nil
}

func (s *chatService) publish(ctx context.Context, communityID string, event interface{}, exclude string) {
	if err := s.broadcaster.Publish(ctx, communityID, event, exclude); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to broadcast")
	}
}
