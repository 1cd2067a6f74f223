package service

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
)

// MembershipGuard answers whether a user belongs to a community. It is
// consulted on every privileged operation; nothing is cached because
// membership can change at any time.
type MembershipGuard struct {
	repo    repository.MembershipRepository
	timeout time.Duration
}

func NewMembershipGuard(repo repository.MembershipRepository, timeout time.Duration) *MembershipGuard {
	return &MembershipGuard{repo: repo, timeout: timeout}
}

// IsMember reports membership. Store failures are returned as ErrTransientStore.
func (g *MembershipGuard) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	ctx, cancel := bound(ctx, g.timeout)
	defer cancel()

	_, err := g.repo.GetMembership(ctx, communityID, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrMembershipNotFound) {
		return false, nil
	}
	return false, transient(err)
}

// Require returns ErrForbidden unless the user is a member.
func (g *MembershipGuard) Require(ctx context.Context, communityID, userID string) error {
	ok, err := g.IsMember(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
