package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

// GormReactionRepository implements ReactionRepository using GORM.
type GormReactionRepository struct {
	db *gorm.DB
}

// NewGormReactionRepository creates a new GORM-based reaction repository.
func NewGormReactionRepository(db *gorm.DB) *GormReactionRepository {
	return &GormReactionRepository{db: db}
}

// Add inserts the (message, user, emoji) triple. An existing triple is left
// alone and reported as not created.
func (r *GormReactionRepository) Add(ctx context.Context, reaction *domain.Reaction) (bool, error) {
	if reaction.ID == "" {
		reaction.ID = uuid.New().String()
	}
	if reaction.CreatedAt.IsZero() {
		reaction.CreatedAt = time.Now()
	}
	reaction.CreatedAt = reaction.CreatedAt.UTC().Truncate(time.Microsecond)

	model := &domain.ReactionModel{
		ID:        reaction.ID,
		MessageID: reaction.MessageID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
		CreatedAt: reaction.CreatedAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, reaction.MessageID).Msg("failed to add reaction")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Remove deletes the triple and reports whether it existed.
func (r *GormReactionRepository) Remove(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&domain.ReactionModel{})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, messageID).Msg("failed to remove reaction")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByMessage returns every reaction of a message in insertion order.
func (r *GormReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	var models []domain.ReactionModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reactions := make([]domain.Reaction, len(models))
	for i, m := range models {
		reactions[i] = m.ToDomain()
	}
	return reactions, nil
}
