package presence

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
)

// Tracker records which users are online in which community. Every call
// is bounded by the store timeout.
type Tracker struct {
	repo    repository.PresenceRepository
	timeout time.Duration
	now     func() time.Time
}

func NewTracker(repo repository.PresenceRepository, timeout time.Duration) *Tracker {
	return &Tracker{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
	}
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *Tracker) record(communityID, userID, connID string) *domain.PresenceRecord {
	return &domain.PresenceRecord{
		CommunityID:  communityID,
		UserID:       userID,
		ConnectionID: connID,
		LastSeen:     t.now(),
	}
}

// MarkOnline makes connID the user's presence in the community.
func (t *Tracker) MarkOnline(ctx context.Context, communityID, userID, connID string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.repo.Upsert(ctx, t.record(communityID, userID, connID))
}

// MarkOffline removes the user's presence if connID still owns it.
func (t *Tracker) MarkOffline(ctx context.Context, communityID, userID, connID string) (bool, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.repo.Remove(ctx, communityID, userID, connID)
}

// Renew refreshes last-seen for the user in the community, recreating a
// swept row. Only the owning connection's own goroutine may call it.
func (t *Tracker) Renew(ctx context.Context, communityID, userID, connID string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.repo.Renew(ctx, t.record(communityID, userID, connID))
}

// Touch refreshes last-seen only while connID still owns the row.
func (t *Tracker) Touch(ctx context.Context, communityID, userID, connID string) (bool, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.repo.Touch(ctx, t.record(communityID, userID, connID))
}

// Online lists the users present in the community.
func (t *Tracker) Online(ctx context.Context, communityID string) ([]domain.OnlineUser, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	users, err := t.repo.ListOnline(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.OnlineUser{}
	}
	return users, nil
}

// SweepStale deletes presence not renewed within staleAfter.
func (t *Tracker) SweepStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.repo.SweepStale(ctx, t.now().Add(-staleAfter))
}
