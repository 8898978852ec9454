package usecases

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

const recentSearchesLimit = 8

type SearchHistoryUsecase struct {
	registry storage.Registry
	now      Clock
}

func NewSearchHistoryUsecase(r storage.Registry) *SearchHistoryUsecase {
	return &SearchHistoryUsecase{
		registry: r,
		now:      SystemClock,
	}
}

// AddSearchQuery remembers a query of the caller. Blank queries are ignored and yield nil.
func (u *SearchHistoryUsecase) AddSearchQuery(ctx context.Context, caller *models.User, text string) (*string, error) {
	if caller == nil {
		return nil, ErrAuthenticationRequired
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var id string
	err := u.registry.Atomic(ctx, func(r storage.Registry) (err error) {
		id, err = r.GetSearchHistoryStore().PutQuery(ctx, uuid.NewString(), caller.UserID, text, u.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (u *SearchHistoryUsecase) RecentSearches(ctx context.Context, caller *models.User) ([]models.SearchHistoryEntry, error) {
	if caller == nil {
		return []models.SearchHistoryEntry{}, nil
	}
	return u.registry.GetSearchHistoryStore().GetRecent(ctx, caller.UserID, recentSearchesLimit)
}
