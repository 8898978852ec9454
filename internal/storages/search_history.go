package storage

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

type SearchHistoryStorage struct {
	db Scope
}

func NewSearchHistoryStorage(db Scope) *SearchHistoryStorage {
	return &SearchHistoryStorage{
		db: db,
	}
}

// PutQuery records a query for the user. Resubmitting a known query only moves
// its timestamp; the id of the stored entry is returned either way.
func (s *SearchHistoryStorage) PutQuery(ctx context.Context, entryId, userId, text string, at time.Time) (string, error) {
	query, args, err := sq.Insert("search_history").
		Columns("entry_id", "user_id", "query", "created_at").
		Values(entryId, userId, text, at).
		Suffix("ON CONFLICT (user_id, query) DO UPDATE SET created_at = EXCLUDED.created_at RETURNING entry_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return "", err
	}

	var id string
	err = s.db.GetContext(ctx, &id, query, args...)
	return id, err
}

func (s *SearchHistoryStorage) GetRecent(ctx context.Context, userId string, limit uint64) ([]models.SearchHistoryEntry, error) {
	query, args, err := sq.Select("*").
		From("search_history").
		Where(sq.Eq{"user_id": userId}).
		OrderBy("created_at DESC").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	entries := make([]models.SearchHistoryEntry, 0)
	err = s.db.SelectContext(ctx, &entries, query, args...)
	return entries, err
}
