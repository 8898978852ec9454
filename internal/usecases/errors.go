package usecases

import (
	"errors"
	"fmt"

	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

var (
	ErrPermissionDenied       = errors.New("user is not authorized to this action")
	ErrAuthenticationRequired = fmt.Errorf("%w: Authentication required", ErrPermissionDenied)
	ErrUserIsNotAChatMember   = fmt.Errorf("%w: User is not a chat member", ErrPermissionDenied)
	ErrNotMessageSender       = fmt.Errorf("%w: Only the sender can delete a message", ErrPermissionDenied)
	ErrNotInviteRecipient     = fmt.Errorf("%w: Only the invited user can respond to an invite", ErrPermissionDenied)
	ErrBusinessLogicViolation = errors.New("business logic violation")
	ErrInvalidInput           = fmt.Errorf("%w: invalid input", ErrBusinessLogicViolation)
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrAlreadyPending         = errors.New("already pending")
	ErrAlreadyResponded       = errors.New("already responded")
)

// translateStorageError lifts storage sentinels into the usecase taxonomy,
// keeping the original error in the chain.
func translateStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConversationNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrInviteNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrConversationAlreadyExists):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, storage.ErrInviteAlreadyPending):
		return fmt.Errorf("%w: %w", ErrAlreadyPending, err)
	case errors.Is(err, storage.ErrInviteAlreadyResponded):
		return fmt.Errorf("%w: %w", ErrAlreadyResponded, err)
	case errors.Is(err, storage.ErrMemberNotFound):
		return ErrUserIsNotAChatMember
	default:
		return err
	}
}
