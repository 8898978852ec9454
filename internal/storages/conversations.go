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
	ErrConversationAlreadyExists = errors.New("conversation for provided participants already exists")
	ErrConversationNotFound      = errors.New("conversation with provided conversation_id does not exist")
	ErrEmptyMembers              = errors.New("members array can't be empty")
	ErrMemberNotFound            = errors.New("user is not a member of the conversation")
)

const (
	ConversationsPrimaryKey               = "conversations_pkey"
	ConversationsDirectKey                = "conversations_direct_key_key"
	ConversationMembersConversationIdFkey = "conversation_members_conversation_id_fkey"
	ConversationMembersUserIdForeignKey   = "conversation_members_user_id_fkey"
	ConversationsLastMessageSenderIdFkey  = "conversations_last_message_sender_id_fkey"
)

type ConversationsStorage struct {
	db Scope
}

func NewConversationsStorage(db Scope) *ConversationsStorage {
	return &ConversationsStorage{
		db: db,
	}
}

func (s *ConversationsStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query, args, err := sq.Insert("conversations").
		Columns("conversation_id", "is_group", "name", "direct_key", "last_message", "last_message_at", "created_at").
		Values(conv.ConversationID, conv.IsGroup, conv.Name, conv.DirectKey, conv.LastMessage, conv.LastMessageAt, conv.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case ConversationsPrimaryKey, ConversationsDirectKey:
		return ErrConversationAlreadyExists
	default:
		return err
	}
}

// PutDirectConversation inserts a direct conversation unless one with the same
// direct key exists. It reports whether a row was inserted.
func (s *ConversationsStorage) PutDirectConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	if conv.DirectKey == nil {
		return false, ErrEmptyMembers
	}

	query, args, err := sq.Insert("conversations").
		Columns("conversation_id", "is_group", "name", "direct_key", "last_message_at", "created_at").
		Values(conv.ConversationID, false, nil, *conv.DirectKey, conv.LastMessageAt, conv.CreatedAt).
		Suffix("ON CONFLICT (direct_key) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if GetPgxConstraintName(err) == ConversationsPrimaryKey {
		return false, ErrConversationAlreadyExists
	} else if err != nil {
		return false, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddMembers adds users to the conversation. Users that already are members are left untouched.
func (s *ConversationsStorage) AddMembers(ctx context.Context, conversationId string, members []string, joinedAt time.Time) error {
	if len(members) == 0 {
		return ErrEmptyMembers
	}

	builder := sq.Insert("conversation_members").
		Columns("conversation_id", "user_id", "joined_at").
		Suffix("ON CONFLICT (conversation_id, user_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar)

	for _, member := range members {
		builder = builder.Values(conversationId, member, joinedAt)
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case ConversationMembersConversationIdFkey:
		return ErrConversationNotFound
	case ConversationMembersUserIdForeignKey:
		return ErrUserNotFound
	default:
		return err
	}
}

func (s *ConversationsStorage) getConversation(ctx context.Context, selector sq.Sqlizer) (*models.Conversation, error) {
	query, args, err := sq.Select("*").
		From("conversations").
		Where(selector).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	conv := models.Conversation{}
	err = s.db.GetContext(ctx, &conv, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	} else if err != nil {
		return nil, err
	} else {
		return &conv, nil
	}
}

func (s *ConversationsStorage) GetConversation(ctx context.Context, conversationId string) (*models.Conversation, error) {
	return s.getConversation(ctx, sq.Eq{"conversation_id": conversationId})
}

// FindDirectConversation looks a direct conversation up by its canonical pair key.
func (s *ConversationsStorage) FindDirectConversation(ctx context.Context, directKey string) (*models.Conversation, error) {
	return s.getConversation(ctx, sq.Eq{"direct_key": directKey})
}

func (s *ConversationsStorage) GetConversationWithMembers(ctx context.Context, conversationId string) (*models.ConversationWithMembers, error) {
	conv, err := s.GetConversation(ctx, conversationId)

	if err != nil {
		return nil, err
	}

	members, err := s.GetMembers(ctx, []string{conversationId})
	if err != nil {
		return nil, err
	}

	return &models.ConversationWithMembers{
		Conversation: *conv,
		Members:      members,
	}, nil
}

// GetMembers returns member rows of all given conversations ordered by conversation and join time.
func (s *ConversationsStorage) GetMembers(ctx context.Context, conversationIds []string) ([]models.ConversationMember, error) {
	members := make([]models.ConversationMember, 0)
	if len(conversationIds) == 0 {
		return members, nil
	}

	query, args, err := sq.Select("*").
		From("conversation_members").
		Where(sq.Eq{"conversation_id": conversationIds}).
		OrderBy("conversation_id", "joined_at", "user_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &members, query, args...)
	return members, err
}

func (s *ConversationsStorage) UserIsMember(ctx context.Context, conversationId string, userId string) (bool, error) {
	// Check if conversation exists
	_, err := s.GetConversation(ctx, conversationId)
	if err != nil {
		return false, err
	}

	query, args, err := sq.Select("count(*)").
		From("conversation_members").
		Where(sq.Eq{
			"conversation_id": conversationId,
			"user_id":         userId,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	count := 0
	if err = s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SelectViewerConversations returns the conversations the viewer takes part in and
// has not hidden, newest activity first, with the viewer's unread count.
func (s *ConversationsStorage) SelectViewerConversations(ctx context.Context, viewerId string) ([]models.ViewerConversation, error) {
	unread := `(SELECT count(*) FROM messages msg
		WHERE msg.conversation_id = c.conversation_id
		AND msg.sender_id <> m.user_id
		AND (m.last_read_at IS NULL OR msg.created_at > m.last_read_at)) AS unread_count`

	query, args, err := sq.Select("c.*", "m.last_read_at", "m.hidden", unread).
		From("conversations c").
		Join("conversation_members m USING (conversation_id)").
		Where(sq.Eq{
			"m.user_id": viewerId,
			"m.hidden":  false,
		}).
		OrderBy("c.last_message_at DESC", "c.conversation_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	convs := make([]models.ViewerConversation, 0)
	err = s.db.SelectContext(ctx, &convs, query, args...)
	return convs, err
}

func (s *ConversationsStorage) updateMember(ctx context.Context, conversationId, userId string, set map[string]interface{}) error {
	query, args, err := sq.Update("conversation_members").
		SetMap(set).
		Where(sq.Eq{
			"conversation_id": conversationId,
			"user_id":         userId,
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
		return ErrMemberNotFound
	}
	return nil
}

func (s *ConversationsStorage) MarkRead(ctx context.Context, conversationId, userId string, at time.Time) error {
	return s.updateMember(ctx, conversationId, userId, map[string]interface{}{"last_read_at": at})
}

// SetTyping stores the typing timestamp of the user; nil clears it.
func (s *ConversationsStorage) SetTyping(ctx context.Context, conversationId, userId string, at *time.Time) error {
	return s.updateMember(ctx, conversationId, userId, map[string]interface{}{"typing_at": at})
}

func (s *ConversationsStorage) Hide(ctx context.Context, conversationId, userId string) error {
	return s.updateMember(ctx, conversationId, userId, map[string]interface{}{"hidden": true})
}

// UnhideForAll makes the conversation visible again to every member.
func (s *ConversationsStorage) UnhideForAll(ctx context.Context, conversationId string) error {
	query, args, err := sq.Update("conversation_members").
		Set("hidden", false).
		Where(sq.Eq{
			"conversation_id": conversationId,
			"hidden":          true,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// SetLastMessage caches the newest message of the conversation. A message older
// than the cached one leaves it in place.
func (s *ConversationsStorage) SetLastMessage(ctx context.Context, conversationId, text, senderId string, at time.Time) error {
	query, args, err := sq.Update("conversations").
		Set("last_message", text).
		Set("last_message_at", at).
		Set("last_message_sender_id", senderId).
		Where(sq.Eq{"conversation_id": conversationId}).
		Where(sq.Or{
			sq.Eq{"last_message": nil},
			sq.LtOrEq{"last_message_at": at},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if GetPgxConstraintName(err) == ConversationsLastMessageSenderIdFkey {
		return ErrUserNotFound
	} else if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		_, err = s.GetConversation(ctx, conversationId)
		return err
	}
	return nil
}

// RedactLastMessage replaces the cached last message text if it still refers
// to the message sent at the given moment by the given sender.
func (s *ConversationsStorage) RedactLastMessage(ctx context.Context, conversationId, senderId string, sentAt time.Time, text string) error {
	query, args, err := sq.Update("conversations").
		Set("last_message", text).
		Where(sq.Eq{
			"conversation_id":        conversationId,
			"last_message_sender_id": senderId,
			"last_message_at":        sentAt,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
