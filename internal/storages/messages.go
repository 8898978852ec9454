package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

var (
	ErrMessageAlreadyExists = errors.New("message with provided message_id already exists")
	ErrMessageNotFound      = errors.New("message does not exist")
	ErrReactionNotFound     = errors.New("reaction does not exist")
)

const (
	MessagesPrimaryKey               = "messages_pkey"
	MessagesConversationIdForeignKey = "messages_conversation_id_fkey"
	MessagesSenderIdForeignKey       = "messages_sender_id_fkey"
	MessageReactionsMessageIdFkey    = "message_reactions_message_id_fkey"
)

type MessagesStorage struct {
	db Scope
}

func NewMessagesStorage(db Scope) *MessagesStorage {
	return &MessagesStorage{
		db: db,
	}
}

func (s *MessagesStorage) PutMessage(ctx context.Context, message *models.Message) error {
	query, args, err := sq.Insert("messages").
		Columns("message_id", "conversation_id", "sender_id", "body", "created_at", "deleted", "reply_to", "reply_to_user").
		Values(message.MessageID, message.ConversationID, message.SenderID, message.Body, message.CreatedAt, message.Deleted, message.ReplyTo, message.ReplyToUser).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case MessagesConversationIdForeignKey:
		return ErrConversationNotFound
	case MessagesSenderIdForeignKey:
		return ErrUserNotFound
	case MessagesPrimaryKey:
		return ErrMessageAlreadyExists
	default:
		return err
	}
}

type SelectOptions struct {
	Limit   uint64
	OrderBy []string
}

func (s *MessagesStorage) SelectMessages(ctx context.Context, selector sq.Sqlizer, options ...SelectOptions) ([]models.Message, error) {
	option := SelectOptions{}
	if len(options) > 0 {
		option = options[0]
	}

	builder := sq.Select("*").
		From("messages").
		Where(selector).
		PlaceholderFormat(sq.Dollar)

	if len(option.OrderBy) > 0 {
		builder = builder.OrderBy(option.OrderBy...)
	}

	if option.Limit > 0 {
		builder = builder.Limit(option.Limit)
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	err = s.db.SelectContext(ctx, &messages, query, args...)
	return messages, err
}

func (s *MessagesStorage) GetMessage(ctx context.Context, messageId string) (*models.Message, error) {
	query, args, err := sq.Select("*").
		From("messages").
		Where(sq.Eq{"message_id": messageId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	msg := models.Message{}
	err = s.db.GetContext(ctx, &msg, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	} else if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkDeleted flags the message as deleted. The row and its body are kept.
func (s *MessagesStorage) MarkDeleted(ctx context.Context, messageId string) error {
	query, args, err := sq.Update("messages").
		Set("deleted", true).
		Where(sq.Eq{"message_id": messageId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	if err != nil {
		return err
	}

	count, err := res.RowsAffected()

	if err != nil {
		return err
	}

	if count == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// CountUnread counts messages of the conversation sent after since by anyone but the viewer.
// A nil since counts every such message.
func (s *MessagesStorage) CountUnread(ctx context.Context, conversationId, viewerId string, since *time.Time) (int, error) {
	selector := sq.And{
		sq.Eq{"conversation_id": conversationId},
		sq.NotEq{"sender_id": viewerId},
	}
	if since != nil {
		selector = append(selector, sq.Gt{"created_at": *since})
	}

	query, args, err := sq.Select("count(*)").
		From("messages").
		Where(selector).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return 0, err
	}

	count := 0
	err = s.db.GetContext(ctx, &count, query, args...)
	return count, err
}

func (s *MessagesStorage) GetReaction(ctx context.Context, messageId, userId string) (*models.Reaction, error) {
	query, args, err := sq.Select("*").
		From("message_reactions").
		Where(sq.Eq{
			"message_id": messageId,
			"user_id":    userId,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	reaction := models.Reaction{}
	err = s.db.GetContext(ctx, &reaction, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReactionNotFound
	} else if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// PutReaction sets the user's reaction on the message, replacing any previous one.
func (s *MessagesStorage) PutReaction(ctx context.Context, reaction *models.Reaction) error {
	query, args, err := sq.Insert("message_reactions").
		Columns("message_id", "user_id", "emoji").
		Values(reaction.MessageID, reaction.UserID, reaction.Emoji).
		Suffix("ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == MessageReactionsMessageIdFkey {
		return ErrMessageNotFound
	}
	return err
}

func (s *MessagesStorage) DeleteReaction(ctx context.Context, messageId, userId string) error {
	query, args, err := sq.Delete("message_reactions").
		Where(sq.Eq{
			"message_id": messageId,
			"user_id":    userId,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrReactionNotFound
	}
	return nil
}

// GetReactions returns every reaction on the given messages.
func (s *MessagesStorage) GetReactions(ctx context.Context, messageIds []string) ([]models.Reaction, error) {
	reactions := make([]models.Reaction, 0)
	if len(messageIds) == 0 {
		return reactions, nil
	}

	query, args, err := sq.Select("*").
		From("message_reactions").
		Where(sq.Eq{"message_id": messageIds}).
		OrderBy("message_id", "user_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &reactions, query, args...)
	return reactions, err
}
