package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type MessagesUsecase struct {
	registry storage.Registry
	now      Clock
}

func NewMessagesUsecase(r storage.Registry) *MessagesUsecase {
	return &MessagesUsecase{
		registry: r,
		now:      SystemClock,
	}
}

// ListMessages returns messages of a conversation oldest first, with aggregated
// reactions and sender summaries. Anonymous callers get nothing.
func (u *MessagesUsecase) ListMessages(ctx context.Context, caller *models.User, sel models.MessagesSelect) ([]models.MessageView, error) {
	if caller == nil {
		return []models.MessageView{}, nil
	}
	if err := requireUUID("conversation_id", sel.ConversationID); err != nil {
		return nil, err
	}

	query := squirrel.And{squirrel.Eq{"conversation_id": sel.ConversationID}}
	if sel.Since != nil {
		query = append(query, squirrel.GtOrEq{"created_at": sel.Since.UTC()})
	}
	if sel.Until != nil {
		query = append(query, squirrel.LtOrEq{"created_at": sel.Until.UTC()})
	}
	opt := storage.SelectOptions{
		OrderBy: []string{"created_at ASC", "message_id"},
	}
	if sel.Count != nil {
		opt.Limit = *sel.Count
	}

	var views []models.MessageView
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if err := requireMember(ctx, r.GetConversationsStore(), sel.ConversationID, caller.UserID); err != nil {
			return err
		}

		messagesStore := r.GetMessagesStore()
		messages, err := messagesStore.SelectMessages(ctx, query, opt)
		if err != nil {
			return err
		}

		ids := make([]string, len(messages))
		senderSet := make(map[string]struct{})
		senderIds := make([]string, 0)
		for i, msg := range messages {
			ids[i] = msg.MessageID
			if _, ok := senderSet[msg.SenderID]; !ok {
				senderSet[msg.SenderID] = struct{}{}
				senderIds = append(senderIds, msg.SenderID)
			}
		}

		reactions, err := messagesStore.GetReactions(ctx, ids)
		if err != nil {
			return err
		}
		senders, err := r.GetUsersStore().GetUsers(ctx, senderIds)
		if err != nil {
			return err
		}

		views = BuildMessageViews(messages, reactions, senders, caller.UserID)
		return nil
	})
	return views, err
}

// SendMessage stores a message and updates the conversation summary. The
// sender's read cursor moves past the message, their typing mark is cleared and
// the conversation reappears for members who hid it. A blank body stores
// nothing and yields nil.
func (u *MessagesUsecase) SendMessage(ctx context.Context, caller *models.User, conversationId, body string, replyTo, replyToUser *string) (*string, error) {
	if caller == nil {
		return nil, ErrAuthenticationRequired
	}
	if err := requireUUID("conversation_id", conversationId); err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	replyTo = optionalText(replyTo)
	replyToUser = optionalText(replyToUser)

	now := u.now()
	msg := &models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationId,
		SenderID:       caller.UserID,
		Body:           body,
		CreatedAt:      now,
		ReplyTo:        replyTo,
		ReplyToUser:    replyToUser,
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetConversationsStore()
		if err := requireMember(ctx, store, conversationId, caller.UserID); err != nil {
			return err
		}

		if err := r.GetMessagesStore().PutMessage(ctx, msg); err != nil {
			return translateStorageError(err)
		}
		if err := store.SetLastMessage(ctx, conversationId, body, caller.UserID, now); err != nil {
			return translateStorageError(err)
		}
		if err := store.SetTyping(ctx, conversationId, caller.UserID, nil); err != nil {
			return translateStorageError(err)
		}
		if err := store.MarkRead(ctx, conversationId, caller.UserID, now); err != nil {
			return translateStorageError(err)
		}
		if err := store.UnhideForAll(ctx, conversationId); err != nil {
			return err
		}

		audience, err := getConversationAudience(ctx, store, conversationId)
		if err != nil {
			return err
		}

		return r.GetUpdatesStore().MessageSent(&models.MessageSent{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  audience,
			},
			MessageID:      msg.MessageID,
			FromUser:       caller.UserID,
			ConversationID: conversationId,
			Text:           body,
			ReplyTo:        replyTo,
		})
	})
	if err != nil {
		return nil, err
	}
	return &msg.MessageID, nil
}

// DeleteMessage soft deletes a message of the caller. Deleting twice is a no-op.
func (u *MessagesUsecase) DeleteMessage(ctx context.Context, caller *models.User, messageId string) error {
	if caller == nil {
		return ErrAuthenticationRequired
	}
	if err := requireUUID("message_id", messageId); err != nil {
		return err
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		messagesStore := r.GetMessagesStore()
		msg, err := messagesStore.GetMessage(ctx, messageId)
		if err != nil {
			return translateStorageError(err)
		}
		if msg.SenderID != caller.UserID {
			return ErrNotMessageSender
		}
		if msg.Deleted {
			return nil
		}

		if err = messagesStore.MarkDeleted(ctx, messageId); err != nil {
			return translateStorageError(err)
		}

		store := r.GetConversationsStore()
		err = store.RedactLastMessage(ctx, msg.ConversationID, msg.SenderID, msg.CreatedAt, models.DeletedMessagePlaceholder)
		if err != nil {
			return err
		}

		audience, err := getConversationAudience(ctx, store, msg.ConversationID)
		if err != nil {
			return err
		}

		return r.GetUpdatesStore().MessageChanged(&models.MessageChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: u.now(),
				Audience:  audience,
			},
			Kind:           models.UpdateMessageDeleted,
			MessageID:      messageId,
			ConversationID: msg.ConversationID,
			UserID:         caller.UserID,
		})
	})
}

// ToggleReaction sets the caller's reaction on a message. Repeating the same
// emoji removes it and a different emoji replaces it.
func (u *MessagesUsecase) ToggleReaction(ctx context.Context, caller *models.User, messageId, emoji string) error {
	if caller == nil {
		return ErrAuthenticationRequired
	}
	if err := requireUUID("message_id", messageId); err != nil {
		return err
	}

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return fmt.Errorf("%w: emoji can't be empty", ErrInvalidInput)
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		messagesStore := r.GetMessagesStore()
		msg, err := messagesStore.GetMessage(ctx, messageId)
		if err != nil {
			return translateStorageError(err)
		}

		store := r.GetConversationsStore()
		if err = requireMember(ctx, store, msg.ConversationID, caller.UserID); err != nil {
			return err
		}
		if msg.Deleted {
			return fmt.Errorf("%w: can't react to a deleted message", ErrInvalidInput)
		}

		current, err := messagesStore.GetReaction(ctx, messageId, caller.UserID)
		if err != nil && !errors.Is(err, storage.ErrReactionNotFound) {
			return err
		}

		if current != nil && current.Emoji == emoji {
			err = messagesStore.DeleteReaction(ctx, messageId, caller.UserID)
		} else {
			err = messagesStore.PutReaction(ctx, &models.Reaction{
				MessageID: messageId,
				UserID:    caller.UserID,
				Emoji:     emoji,
			})
		}
		if err != nil {
			return translateStorageError(err)
		}

		audience, err := getConversationAudience(ctx, store, msg.ConversationID)
		if err != nil {
			return err
		}

		return r.GetUpdatesStore().MessageChanged(&models.MessageChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: u.now(),
				Audience:  audience,
			},
			Kind:           models.UpdateReactionToggled,
			MessageID:      messageId,
			ConversationID: msg.ConversationID,
			UserID:         caller.UserID,
			Emoji:          emoji,
		})
	})
}
