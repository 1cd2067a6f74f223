package service

import (
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("not a member of this community")
	ErrNotFound         = errors.New("message not found")
	ErrNotOwner         = errors.New("only the author can change this message")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTransientStore   = errors.New("store temporarily unavailable")
	ErrRateLimited      = errors.New("too many requests")
	ErrNotInCommunity   = errors.New("not in this community")
	ErrStorageDisabled  = errors.New("attachments are disabled")
	ErrTooLarge         = errors.New("attachment too large")
)

// transient wraps a store failure so callers can match ErrTransientStore
// while the cause stays in the chain.
func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// ToErrorMessage maps a service error to the outbound error event.
func ToErrorMessage(err error) *domain.ErrorMessage {
	switch {
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrNotAuthenticated):
		return domain.NewErrorMessage(domain.ErrCodeUnauthorized, ErrNotAuthenticated.Error())
	case errors.Is(err, ErrForbidden):
		return domain.NewErrorMessage(domain.ErrCodeForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrNotFound):
		return domain.NewErrorMessage(domain.ErrCodeNotFound, "message no longer available")
	case errors.Is(err, ErrNotOwner):
		return domain.NewErrorMessage(domain.ErrCodeNotOwner, "message no longer editable")
	case errors.Is(err, ErrEmptyContent):
		return domain.NewErrorMessage(domain.ErrCodeEmptyContent, ErrEmptyContent.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrTooLarge), errors.Is(err, ErrStorageDisabled):
		return domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrNotInCommunity):
		return domain.NewErrorMessage(domain.ErrCodeNotInCommunity, ErrNotInCommunity.Error())
	case errors.Is(err, ErrRateLimited):
		return domain.NewErrorMessage(domain.ErrCodeRateLimited, ErrRateLimited.Error())
	case errors.Is(err, ErrTransientStore):
		return domain.NewErrorMessage(domain.ErrCodeStoreUnavailable, "temporarily unavailable, please retry")
	default:
		return domain.NewErrorMessage(domain.ErrCodeInternalError, "internal error")
	}
}
