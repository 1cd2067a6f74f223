package domain

import "time"

// UserModel is the GORM model for the users table. Profiles are owned by
// the user collaborator; this service only reads display fields.
type UserModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	Name      string    `gorm:"type:varchar(100);not null"`
	AvatarURL string    `gorm:"type:varchar(500)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// MembershipModel is the GORM model for community_members. The composite
// primary key keeps one row per (community, user).
type MembershipModel struct {
	CommunityID string    `gorm:"type:varchar(64);primaryKey"`
	UserID      string    `gorm:"type:varchar(64);primaryKey;index"`
	Role        string    `gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for MembershipModel.
func (MembershipModel) TableName() string {
	return "community_members"
}

// ToDomain converts MembershipModel to domain Membership.
func (m *MembershipModel) ToDomain() *Membership {
	return &Membership{
		CommunityID: m.CommunityID,
		UserID:      m.UserID,
		Role:        Role(m.Role),
		JoinedAt:    m.JoinedAt,
	}
}

// MessageModel is the GORM model for messages.
type MessageModel struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	CommunityID string     `gorm:"type:varchar(64);not null;index:idx_messages_community_created,priority:1"`
	AuthorID    string     `gorm:"type:varchar(64);not null;index"`
	Content     string     `gorm:"type:text;not null"`
	Kind        string     `gorm:"type:varchar(10);not null;default:'text'"`
	FileRef     *string    `gorm:"type:varchar(500)"`
	ReplyTo     *string    `gorm:"type:varchar(36);index"`
	Edited      bool       `gorm:"not null;default:false"`
	EditedAt    *time.Time
	CreatedAt   time.Time `gorm:"not null;index:idx_messages_community_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:          m.ID,
		CommunityID: m.CommunityID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		Kind:        MessageKind(m.Kind),
		FileRef:     m.FileRef,
		ReplyTo:     m.ReplyTo,
		Edited:      m.Edited,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:          msg.ID,
		CommunityID: msg.CommunityID,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		Kind:        string(msg.Kind),
		FileRef:     msg.FileRef,
		ReplyTo:     msg.ReplyTo,
		Edited:      msg.Edited,
		EditedAt:    msg.EditedAt,
		CreatedAt:   msg.CreatedAt,
	}
}

// ReactionModel is the GORM model for message_reactions.
type ReactionModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	MessageID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_reactions_triple,priority:1"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_reactions_triple,priority:2"`
	Emoji     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reactions_triple,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for ReactionModel.
func (ReactionModel) TableName() string {
	return "message_reactions"
}

// ToDomain converts ReactionModel to domain Reaction.
func (m *ReactionModel) ToDomain() Reaction {
	return Reaction{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		Emoji:     m.Emoji,
		CreatedAt: m.CreatedAt,
	}
}

// PresenceModel is the GORM model for presence. One row per (community, user);
// the most recent connection wins.
type PresenceModel struct {
	CommunityID  string    `gorm:"type:varchar(64);primaryKey"`
	UserID       string    `gorm:"type:varchar(64);primaryKey"`
	ConnectionID string    `gorm:"type:varchar(36);not null;index"`
	LastSeen     time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for PresenceModel.
func (PresenceModel) TableName() string {
	return "presence"
}

// Models lists every table this service migrates.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&MembershipModel{},
		&MessageModel{},
		&ReactionModel{},
		&PresenceModel{},
	}
}
