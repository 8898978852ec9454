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
	ErrUserNotFound = errors.New("user does not exist")
)

type UsersStorage struct {
	db Scope
}

func NewUsersStorage(db Scope) *UsersStorage {
	return &UsersStorage{
		db: db,
	}
}

// UpsertUser inserts the user or, when the token identifier is already known,
// refreshes its profile fields and last seen timestamp. The stored row is returned.
func (s *UsersStorage) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	query, args, err := sq.Insert("users").
		Columns("user_id", "token_identifier", "name", "email", "image_url", "last_seen_at").
		Values(user.UserID, user.TokenIdentifier, user.Name, user.Email, user.ImageURL, user.LastSeenAt).
		Suffix(`ON CONFLICT (token_identifier) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			image_url = EXCLUDED.image_url,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING *`).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	stored := models.User{}
	err = s.db.GetContext(ctx, &stored, query, args...)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *UsersStorage) getUser(ctx context.Context, selector sq.Sqlizer) (*models.User, error) {
	query, args, err := sq.Select("*").
		From("users").
		Where(selector).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	user := models.User{}
	err = s.db.GetContext(ctx, &user, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersStorage) GetUser(ctx context.Context, userId string) (*models.User, error) {
	return s.getUser(ctx, sq.Eq{"user_id": userId})
}

func (s *UsersStorage) GetUserByToken(ctx context.Context, tokenIdentifier string) (*models.User, error) {
	return s.getUser(ctx, sq.Eq{"token_identifier": tokenIdentifier})
}

// GetUsers returns the users with the given ids keyed by id. Unknown ids are absent.
func (s *UsersStorage) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query, args, err := sq.Select("*").
		From("users").
		Where(sq.Eq{"user_id": ids}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	var rows []models.User
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for _, u := range rows {
		users[u.UserID] = u
	}
	return users, nil
}

func (s *UsersStorage) TouchLastSeen(ctx context.Context, userId string, at time.Time) error {
	query, args, err := sq.Update("users").
		Set("last_seen_at", at).
		Where(sq.Eq{"user_id": userId}).
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
		return ErrUserNotFound
	}
	return nil
}

// SearchUsers matches the name by case-insensitive substring, excluding one user.
func (s *UsersStorage) SearchUsers(ctx context.Context, text, excludeId string, limit uint64) ([]models.User, error) {
	return s.selectUsers(ctx, sq.And{
		sq.ILike{"name": likePattern(text)},
		sq.NotEq{"user_id": excludeId},
	}, limit)
}

func (s *UsersStorage) SelectOtherUsers(ctx context.Context, excludeId string, limit uint64) ([]models.User, error) {
	return s.selectUsers(ctx, sq.NotEq{"user_id": excludeId}, limit)
}

func (s *UsersStorage) selectUsers(ctx context.Context, selector sq.Sqlizer, limit uint64) ([]models.User, error) {
	builder := sq.Select("*").
		From("users").
		Where(selector).
		OrderBy("last_seen_at DESC", "user_id").
		PlaceholderFormat(sq.Dollar)

	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0)
	if err = s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}
	return users, nil
}
