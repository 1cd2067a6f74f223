package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

// GormMembershipRepository implements MembershipRepository using GORM.
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository creates a new GORM-based membership repository.
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

// GetMembership returns the membership row of a user in a community.
func (r *GormMembershipRepository) GetMembership(ctx context.Context, communityID, userID string) (*domain.Membership, error) {
	var model domain.MembershipModel
	result := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).
			Str(log.FieldCommunityID, communityID).
			Str(log.FieldUserID, userID).
			Msg("failed to get membership")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
