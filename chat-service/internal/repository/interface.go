package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrMembershipNotFound = errors.New("membership not found")
)

// MembershipRepository reads community membership. Rows are written by the
// community administration service.
type MembershipRepository interface {
	GetMembership(ctx context.Context, communityID, userID string) (*domain.Membership, error)
}

// MessageRepository defines the persistence contract of the message ledger.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetView(ctx context.Context, id string) (*domain.MessageView, error)
	ListPage(ctx context.Context, communityID string, page, limit int) ([]domain.MessageView, int64, error)
	ListLatest(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error)
	UpdateContent(ctx context.Context, id, authorID, content string, editedAt time.Time) error
	Delete(ctx context.Context, id, authorID string) error
}

// ReactionRepository defines the persistence contract of the reaction ledger.
type ReactionRepository interface {
	Add(ctx context.Context, reaction *domain.Reaction) (bool, error)
	Remove(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ListByMessage(ctx context.Context, messageID string) ([]domain.Reaction, error)
}

// PresenceRepository defines the persistence contract of the presence table.
type PresenceRepository interface {
	Upsert(ctx context.Context, rec *domain.PresenceRecord) error
	Renew(ctx context.Context, rec *domain.PresenceRecord) error
	Touch(ctx context.Context, rec *domain.PresenceRecord) (bool, error)
	Remove(ctx context.Context, communityID, userID, connectionID string) (bool, error)
	SweepStale(ctx context.Context, before time.Time) (int64, error)
	ListOnline(ctx context.Context, communityID string) ([]domain.OnlineUser, error)
}
