package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

// GormPresenceRepository implements PresenceRepository using GORM.
type GormPresenceRepository struct {
	db *gorm.DB
}

// NewGormPresenceRepository creates a new GORM-based presence repository.
func NewGormPresenceRepository(db *gorm.DB) *GormPresenceRepository {
	return &GormPresenceRepository{db: db}
}

func presenceModel(rec *domain.PresenceRecord) *domain.PresenceModel {
	seen := rec.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	return &domain.PresenceModel{
		CommunityID:  rec.CommunityID,
		UserID:       rec.UserID,
		ConnectionID: rec.ConnectionID,
		LastSeen:     seen.UTC().Truncate(time.Microsecond),
	}
}

var presenceKey = []clause.Column{{Name: "community_id"}, {Name: "user_id"}}

// Upsert writes the presence row; the given connection takes ownership.
func (r *GormPresenceRepository) Upsert(ctx context.Context, rec *domain.PresenceRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   presenceKey,
			DoUpdates: clause.AssignmentColumns([]string{"connection_id", "last_seen"}),
		}).
		Create(presenceModel(rec)).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldCommunityID, rec.CommunityID).
			Str(log.FieldUserID, rec.UserID).
			Msg("failed to upsert presence")
	}
	return err
}

// Renew refreshes last_seen without taking the row from a newer connection.
// A swept row is recreated for the given connection.
func (r *GormPresenceRepository) Renew(ctx context.Context, rec *domain.PresenceRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   presenceKey,
			DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
		}).
		Create(presenceModel(rec)).Error
}

// Touch refreshes last_seen of a row still owned by the connection. It
// never inserts, so a row removed by leave or disconnect stays removed.
func (r *GormPresenceRepository) Touch(ctx context.Context, rec *domain.PresenceRecord) (bool, error) {
	m := presenceModel(rec)
	result := r.db.WithContext(ctx).
		Model(&domain.PresenceModel{}).
		Where("community_id = ? AND user_id = ? AND connection_id = ?", m.CommunityID, m.UserID, m.ConnectionID).
		Update("last_seen", m.LastSeen)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Remove deletes the row only if it still belongs to connectionID.
func (r *GormPresenceRepository) Remove(ctx context.Context, communityID, userID, connectionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ? AND connection_id = ?", communityID, userID, connectionID).
		Delete(&domain.PresenceModel{})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).
			Str(log.FieldCommunityID, communityID).
			Str(log.FieldUserID, userID).
			Msg("failed to remove presence")
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SweepStale deletes rows last seen strictly before the cutoff.
func (r *GormPresenceRepository) SweepStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_seen < ?", before.UTC().Truncate(time.Microsecond)).
		Delete(&domain.PresenceModel{})
	return result.RowsAffected, result.Error
}

// ListOnline returns the community's presence rows joined with profiles,
// ordered by user id.
func (r *GormPresenceRepository) ListOnline(ctx context.Context, communityID string) ([]domain.OnlineUser, error) {
	var models []domain.PresenceModel
	err := r.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("user_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.UserID
	}
	users, err := loadUsers(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	online := make([]domain.OnlineUser, len(models))
	for i, m := range models {
		author := authorOf(users, m.UserID)
		online[i] = domain.OnlineUser{
			UserID:       m.UserID,
			Name:         author.Name,
			AvatarURL:    author.AvatarURL,
			ConnectionID: m.ConnectionID,
			LastSeen:     m.LastSeen,
		}
	}
	return online, nil
}
