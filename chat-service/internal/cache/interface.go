package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

// LatestCache caches the latest-N message views of a community.
type LatestCache interface {
	Get(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error)
	Set(ctx context.Context, communityID string, limit int, views []domain.MessageView, ttl time.Duration) error
	Invalidate(ctx context.Context, communityID string) error
	Close() error
}
