package domain

// WebSocket message types from client.
const (
	MsgTypeAuthenticate   = "authenticate"
	MsgTypeJoinCommunity  = "join_community"
	MsgTypeLeaveCommunity = "leave_community"
	MsgTypeSendMessage    = "send_message"
	MsgTypeEditMessage    = "edit_message"
	MsgTypeDeleteMessage  = "delete_message"
	MsgTypeAddReaction    = "add_reaction"
	MsgTypeRemoveReaction = "remove_reaction"
	MsgTypeTypingStart    = "typing_start"
	MsgTypeTypingStop     = "typing_stop"
	MsgTypePing           = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthenticated       = "authenticated"
	MsgTypeAuthenticationError = "authentication_error"
	MsgTypeJoinedCommunity     = "joined_community"
	MsgTypeLeftCommunity       = "left_community"
	MsgTypeError               = "error"
	MsgTypeUserJoined          = "user_joined"
	MsgTypeUserLeft            = "user_left"
	MsgTypeOnlineUsersUpdated  = "online_users_updated"
	MsgTypeNewMessage          = "new_message"
	MsgTypeMessageEdited       = "message_edited"
	MsgTypeMessageDeleted      = "message_deleted"
	MsgTypeReactionAdded       = "reaction_added"
	MsgTypeReactionRemoved     = "reaction_removed"
	MsgTypeUserTyping          = "user_typing"
	MsgTypeUserStopTyping      = "user_stop_typing"
	MsgTypePong                = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeNotOwner         = "NOT_OWNER"
	ErrCodeEmptyContent     = "EMPTY_CONTENT"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotInCommunity   = "NOT_IN_COMMUNITY"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthenticateMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId" validate:"omitempty,max=64"`
	Token  string `json:"token" validate:"required"`
}

// CommunityMessage is shared by join, leave and typing events.
type CommunityMessage struct {
	Type        string `json:"type"`
	CommunityID string `json:"communityId" validate:"required,max=64"`
}

type SendMessageMessage struct {
	Type        string `json:"type"`
	CommunityID string `json:"communityId" validate:"required,max=64"`
	Content     string `json:"content"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text file system"`
	FileURL     string `json:"fileUrl,omitempty" validate:"omitempty,max=500"`
	ReplyTo     string `json:"replyTo,omitempty" validate:"omitempty,max=36"`
}

type EditMessageMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId" validate:"required,max=36"`
	Content   string `json:"content"`
}

type DeleteMessageMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId" validate:"required,max=36"`
}

type ReactionMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId" validate:"required,max=36"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

// Server -> Client messages

type AuthenticatedMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type AuthenticationErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CommunityEventMessage carries joined_community and left_community.
type CommunityEventMessage struct {
	Type        string `json:"type"`
	CommunityID string `json:"communityId"`
}

// UserEventMessage carries user_joined, user_left, user_typing and user_stop_typing.
type UserEventMessage struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	CommunityID string `json:"communityId"`
}

type OnlineUsersMessage struct {
	Type        string       `json:"type"`
	CommunityID string       `json:"communityId"`
	Users       []OnlineUser `json:"users"`
}

// MessageEventMessage carries new_message and message_edited. The view is
// flattened next to the type.
type MessageEventMessage struct {
	Type string `json:"type"`
	MessageView
}

type MessageDeletedMessage struct {
	Type        string `json:"type"`
	MessageID   string `json:"messageId"`
	CommunityID string `json:"communityId"`
}

// ReactionsMessage carries reaction_added and reaction_removed with the
// message's full reaction list.
type ReactionsMessage struct {
	Type        string     `json:"type"`
	MessageID   string     `json:"messageId"`
	CommunityID string     `json:"communityId"`
	Reactions   []Reaction `json:"reactions"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
