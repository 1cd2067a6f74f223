package domain

import "time"

// MessageKind classifies a chat message.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindFile, KindSystem:
		return true
	}
	return false
}

// Role is a member's role inside a community.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Membership links a user to a community.
type Membership struct {
	CommunityID string    `json:"communityId"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Message is a stored chat message. CommunityID, AuthorID and CreatedAt
// never change after creation.
type Message struct {
	ID          string
	CommunityID string
	AuthorID    string
	Content     string
	Kind        MessageKind
	FileRef     *string
	ReplyTo     *string
	Edited      bool
	EditedAt    *time.Time
	CreatedAt   time.Time
}

// Author carries the display fields of a message author.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ReplyPreview summarises the message a reply points at. Unavailable is
// set when the target no longer exists.
type ReplyPreview struct {
	MessageID   string `json:"messageId"`
	AuthorID    string `json:"authorId,omitempty"`
	AuthorName  string `json:"authorName,omitempty"`
	Content     string `json:"content,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// MessageView is the denormalized message sent to clients.
type MessageView struct {
	ID           string        `json:"id"`
	CommunityID  string        `json:"communityId"`
	AuthorID     string        `json:"authorId"`
	Author       Author        `json:"author"`
	Content      string        `json:"content"`
	Kind         MessageKind   `json:"messageType"`
	FileRef      string        `json:"fileRef,omitempty"`
	FileURL      string        `json:"fileUrl,omitempty"`
	ReplyTo      *string       `json:"replyTo"`
	ReplyPreview *ReplyPreview `json:"replyPreview,omitempty"`
	Edited       bool          `json:"edited"`
	EditedAt     *time.Time    `json:"editedAt"`
	CreatedAt    time.Time     `json:"createdAt"`
	Reactions    []Reaction    `json:"reactions"`
}

// MessagePage is one offset page of a community's history.
type MessagePage struct {
	Messages []MessageView
	Page     int
	Limit    int
	Total    int64
}

// TotalPages returns the number of pages for the page size.
func (p *MessagePage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// SendMessageInput is a validated request to post a message.
type SendMessageInput struct {
	CommunityID string
	Content     string
	Kind        MessageKind
	FileRef     string
	ReplyTo     string
}

// Reaction is one (message, user, emoji) triple.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// PresenceRecord marks a user online in a community through one connection.
type PresenceRecord struct {
	CommunityID  string
	UserID       string
	ConnectionID string
	LastSeen     time.Time
}

// OnlineUser is a presence row joined with the user's profile.
type OnlineUser struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	ConnectionID string    `json:"connectionId"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Attachment is a stored file that a file message can reference.
type Attachment struct {
	Key         string `json:"fileRef"`
	URL         string `json:"fileUrl"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}
