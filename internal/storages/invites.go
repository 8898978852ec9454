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
	ErrInviteNotFound         = errors.New("invite does not exist")
	ErrInviteAlreadyPending   = errors.New("pending invite already exists")
	ErrInviteAlreadyResponded = errors.New("invite has already been responded to")
)

const (
	ChatInvitesPendingPairKey   = "chat_invites_pending_pair_key"
	ChatInvitesToUserIdFkey     = "chat_invites_to_user_id_fkey"
	GroupInvitesPendingKey      = "group_invites_pending_key"
	GroupInvitesInvitedUserFkey = "group_invites_invited_user_id_fkey"
)

type InvitesStorage struct {
	db Scope
}

func NewInvitesStorage(db Scope) *InvitesStorage {
	return &InvitesStorage{
		db: db,
	}
}

func (s *InvitesStorage) PutChatInvite(ctx context.Context, invite *models.ChatInvite) error {
	query, args, err := sq.Insert("chat_invites").
		Columns("invite_id", "from_user_id", "to_user_id", "status", "message", "created_at").
		Values(invite.InviteID, invite.FromUserID, invite.ToUserID, invite.Status, invite.Message, invite.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case ChatInvitesPendingPairKey:
		return ErrInviteAlreadyPending
	case ChatInvitesToUserIdFkey:
		return ErrUserNotFound
	default:
		return err
	}
}

// GetChatInvite loads an invite and locks its row until the end of the transaction.
func (s *InvitesStorage) GetChatInvite(ctx context.Context, inviteId string) (*models.ChatInvite, error) {
	query, args, err := sq.Select("*").
		From("chat_invites").
		Where(sq.Eq{"invite_id": inviteId}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	invite := models.ChatInvite{}
	err = s.db.GetContext(ctx, &invite, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInviteNotFound
	} else if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (s *InvitesStorage) SelectChatInvites(ctx context.Context, selector sq.Sqlizer) ([]models.ChatInvite, error) {
	query, args, err := sq.Select("*").
		From("chat_invites").
		Where(selector).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	invites := make([]models.ChatInvite, 0)
	err = s.db.SelectContext(ctx, &invites, query, args...)
	return invites, err
}

// HasPendingChatInvite reports whether a pending invite exists between the users in either direction.
func (s *InvitesStorage) HasPendingChatInvite(ctx context.Context, userA, userB string) (bool, error) {
	invites, err := s.SelectChatInvites(ctx, sq.And{
		sq.Eq{"status": models.InviteStatusPending},
		sq.Or{
			sq.Eq{"from_user_id": userA, "to_user_id": userB},
			sq.Eq{"from_user_id": userB, "to_user_id": userA},
		},
	})
	if err != nil {
		return false, err
	}
	return len(invites) > 0, nil
}

func (s *InvitesStorage) RespondChatInvite(ctx context.Context, inviteId string, status models.InviteStatus, at time.Time) error {
	return s.respond(ctx, "chat_invites", inviteId, status, at)
}

// PutGroupInvite stores the invite unless a pending one for the same user and
// conversation exists. It reports whether the invite was stored.
func (s *InvitesStorage) PutGroupInvite(ctx context.Context, invite *models.GroupInvite) (bool, error) {
	query, args, err := sq.Insert("group_invites").
		Columns("invite_id", "conversation_id", "invited_user_id", "invited_by_user_id", "status", "message", "created_at").
		Values(invite.InviteID, invite.ConversationID, invite.InvitedUserID, invite.InvitedByUserID, invite.Status, invite.Message, invite.CreatedAt).
		Suffix("ON CONFLICT DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == GroupInvitesInvitedUserFkey {
		return false, ErrUserNotFound
	} else if err != nil {
		return false, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetGroupInvite loads an invite and locks its row until the end of the transaction.
func (s *InvitesStorage) GetGroupInvite(ctx context.Context, inviteId string) (*models.GroupInvite, error) {
	query, args, err := sq.Select("*").
		From("group_invites").
		Where(sq.Eq{"invite_id": inviteId}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	invite := models.GroupInvite{}
	err = s.db.GetContext(ctx, &invite, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInviteNotFound
	} else if err != nil {
		return nil, err
	}
	return &invite, nil
}

// SelectGroupInvites returns matching invites with the name of their group, newest first.
func (s *InvitesStorage) SelectGroupInvites(ctx context.Context, selector sq.Sqlizer) ([]models.NamedGroupInvite, error) {
	query, args, err := sq.Select("i.*", "c.name AS group_name").
		From("group_invites i").
		Join("conversations c USING (conversation_id)").
		Where(selector).
		OrderBy("i.created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	invites := make([]models.NamedGroupInvite, 0)
	err = s.db.SelectContext(ctx, &invites, query, args...)
	return invites, err
}

func (s *InvitesStorage) RespondGroupInvite(ctx context.Context, inviteId string, status models.InviteStatus, at time.Time) error {
	return s.respond(ctx, "group_invites", inviteId, status, at)
}

// respond moves a pending invite to a terminal status. Invites that are no
// longer pending are left untouched and reported as already responded.
func (s *InvitesStorage) respond(ctx context.Context, table, inviteId string, status models.InviteStatus, at time.Time) error {
	query, args, err := sq.Update(table).
		Set("status", status).
		Set("responded_at", at).
		Where(sq.Eq{
			"invite_id": inviteId,
			"status":    models.InviteStatusPending,
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
		return ErrInviteAlreadyResponded
	}
	return nil
}
