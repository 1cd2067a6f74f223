package repository

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

const (
	defaultPageSize   = 50
	replyPreviewRunes = 140
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create appends a message. ID and CreatedAt are assigned when empty.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Microsecond)

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldCommunityID, msg.CommunityID).Msg("failed to create message in db")
		return err
	}
	l.Debug().Str(log.FieldMessageID, msg.ID).Msg("message created in db")
	return nil
}

// GetByID retrieves a bare message row.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetView retrieves a message joined with its author, reply preview and reactions.
func (r *GormMessageRepository) GetView(ctx context.Context, id string) (*domain.MessageView, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, result.Error
	}

	views, err := r.hydrate(ctx, []domain.MessageModel{model})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListPage returns one page of a community's history, oldest first, and the
// total message count.
func (r *GormMessageRepository) ListPage(ctx context.Context, communityID string, page, limit int) ([]domain.MessageView, int64, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	offset := (page - 1) * limit

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("community_id = ?", communityID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to count messages")
		return nil, 0, err
	}

	var models []domain.MessageModel
	if err := query.Order("created_at ASC").Order("id ASC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to list messages from db")
		return nil, 0, err
	}

	views, err := r.hydrate(ctx, models)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ListLatest returns the newest limit messages in chronological order.
func (r *GormMessageRepository) ListLatest(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error) {
	if limit < 1 {
		limit = defaultPageSize
	}

	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to list latest messages from db")
		return nil, err
	}

	for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
		models[i], models[j] = models[j], models[i]
	}
	return r.hydrate(ctx, models)
}

// UpdateContent rewrites the content of a message owned by authorID and marks
// it edited.
func (r *GormMessageRepository) UpdateContent(ctx context.Context, id, authorID, content string, editedAt time.Time) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND author_id = ?", id, authorID).
		Updates(map[string]interface{}{
			"content":   content,
			"edited":    true,
			"edited_at": editedAt.UTC().Truncate(time.Microsecond),
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to update message in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Delete hard-deletes a message owned by authorID together with its
// reactions. Replies pointing at it are left untouched.
func (r *GormMessageRepository) Delete(ctx context.Context, id, authorID string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND author_id = ?", id, authorID).Delete(&domain.MessageModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMessageNotFound
		}
		return tx.Where("message_id = ?", id).Delete(&domain.ReactionModel{}).Error
	})
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message in db")
	}
	return err
}

// hydrate batch-loads authors, reply targets and reactions for models and
// returns views in the same order.
func (r *GormMessageRepository) hydrate(ctx context.Context, models []domain.MessageModel) ([]domain.MessageView, error) {
	views := make([]domain.MessageView, len(models))
	if len(models) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(models))
	replyIDs := make([]string, 0)
	for _, m := range models {
		ids = append(ids, m.ID)
		if m.ReplyTo != nil {
			replyIDs = append(replyIDs, *m.ReplyTo)
		}
	}

	replies := make(map[string]domain.MessageModel)
	if len(replyIDs) > 0 {
		var targets []domain.MessageModel
		if err := r.db.WithContext(ctx).Where("id IN ?", replyIDs).Find(&targets).Error; err != nil {
			return nil, err
		}
		for _, t := range targets {
			replies[t.ID] = t
		}
	}

	userIDs := make([]string, 0, len(models)+len(replies))
	for _, m := range models {
		userIDs = append(userIDs, m.AuthorID)
	}
	for _, t := range replies {
		userIDs = append(userIDs, t.AuthorID)
	}
	users, err := loadUsers(ctx, r.db, userIDs)
	if err != nil {
		return nil, err
	}

	var reactionModels []domain.ReactionModel
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("created_at ASC").Order("id ASC").
		Find(&reactionModels).Error; err != nil {
		return nil, err
	}
	reactions := make(map[string][]domain.Reaction, len(models))
	for _, rm := range reactionModels {
		reactions[rm.MessageID] = append(reactions[rm.MessageID], rm.ToDomain())
	}

	for i, m := range models {
		view := domain.MessageView{
			ID:          m.ID,
			CommunityID: m.CommunityID,
			AuthorID:    m.AuthorID,
			Author:      authorOf(users, m.AuthorID),
			Content:     m.Content,
			Kind:        domain.MessageKind(m.Kind),
			ReplyTo:     m.ReplyTo,
			Edited:      m.Edited,
			EditedAt:    m.EditedAt,
			CreatedAt:   m.CreatedAt,
			Reactions:   reactions[m.ID],
		}
		if m.FileRef != nil {
			view.FileRef = *m.FileRef
		}
		if view.Reactions == nil {
			view.Reactions = []domain.Reaction{}
		}
		if m.ReplyTo != nil {
			view.ReplyPreview = previewOf(m, replies, users)
		}
		views[i] = view
	}
	return views, nil
}

func previewOf(m domain.MessageModel, replies map[string]domain.MessageModel, users map[string]domain.UserModel) *domain.ReplyPreview {
	target, ok := replies[*m.ReplyTo]
	if !ok || target.CommunityID != m.CommunityID {
		return &domain.ReplyPreview{MessageID: *m.ReplyTo, Unavailable: true}
	}
	author := authorOf(users, target.AuthorID)
	return &domain.ReplyPreview{
		MessageID:  target.ID,
		AuthorID:   target.AuthorID,
		AuthorName: author.Name,
		Content:    truncateRunes(target.Content, replyPreviewRunes),
	}
}

func loadUsers(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.UserModel, error) {
	users := make(map[string]domain.UserModel, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var models []domain.UserModel
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, u := range models {
		users[u.ID] = u
	}
	return users, nil
}

// authorOf falls back to the raw id when the profile is missing.
func authorOf(users map[string]domain.UserModel, id string) domain.Author {
	u, ok := users[id]
	if !ok {
		return domain.Author{ID: id, Name: id}
	}
	return domain.Author{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
