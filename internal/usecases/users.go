package usecases

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

const (
	searchUsersLimit    = 20
	suggestedUsersLimit = 10
)

type UsersUsecase struct {
	registry storage.Registry
	now      Clock
}

func NewUsersUsecase(r storage.Registry) *UsersUsecase {
	return &UsersUsecase{
		registry: r,
		now:      SystemClock,
	}
}

// ResolveCaller maps a verified identity to a stored user, creating the user on
// first sight. Profile fields and last seen are refreshed on every call.
func (u *UsersUsecase) ResolveCaller(ctx context.Context, identity *models.Identity) (*models.User, error) {
	return u.resolve(ctx, u.registry, identity)
}

// AsCaller resolves the caller and runs fn in the same transaction. Usecases
// called by fn with its context join that transaction, so when fn fails the
// caller's profile and last seen stay as they were.
func (u *UsersUsecase) AsCaller(ctx context.Context, identity *models.Identity, fn func(ctx context.Context, caller *models.User) error) error {
	if identity == nil || identity.Subject == "" {
		return ErrAuthenticationRequired
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		caller, err := u.resolve(ctx, r, identity)
		if err != nil {
			return err
		}
		return fn(storage.WithRegistry(ctx, r), caller)
	})
}

func (u *UsersUsecase) resolve(ctx context.Context, r storage.Registry, identity *models.Identity) (*models.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, ErrAuthenticationRequired
	}

	user := &models.User{
		UserID:          uuid.NewString(),
		TokenIdentifier: identity.TokenIdentifier(),
		Name:            optionalText(&identity.Name),
		Email:           optionalText(&identity.Email),
		ImageURL:        optionalText(&identity.PictureURL),
		LastSeenAt:      u.now(),
	}
	return r.GetUsersStore().UpsertUser(ctx, user)
}

// CurrentCaller looks the caller up without creating it. Anonymous and unknown
// callers both yield nil.
func (u *UsersUsecase) CurrentCaller(ctx context.Context, identity *models.Identity) (*models.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, nil
	}

	user, err := u.registry.GetUsersStore().GetUserByToken(ctx, identity.TokenIdentifier())
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

// UpdatePresence is the heartbeat. Known callers only get last seen moved to
// now; unknown ones are resolved first.
func (u *UsersUsecase) UpdatePresence(ctx context.Context, identity *models.Identity) (*models.User, error) {
	user, err := u.CurrentCaller(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return u.ResolveCaller(ctx, identity)
	}

	now := u.now()
	if err = u.registry.GetUsersStore().TouchLastSeen(ctx, user.UserID, now); err != nil {
		return nil, translateStorageError(err)
	}
	user.LastSeenAt = now
	return user, nil
}

func (u *UsersUsecase) SearchUsers(ctx context.Context, caller *models.User, text string) ([]models.UserView, error) {
	text = strings.TrimSpace(text)
	if caller == nil || text == "" {
		return []models.UserView{}, nil
	}

	users, err := u.registry.GetUsersStore().SearchUsers(ctx, text, caller.UserID, searchUsersLimit)
	if err != nil {
		return nil, err
	}
	return u.toViews(users), nil
}

// SuggestedUsers lists other users, most recently active first.
func (u *UsersUsecase) SuggestedUsers(ctx context.Context, caller *models.User) ([]models.UserView, error) {
	if caller == nil {
		return []models.UserView{}, nil
	}

	users, err := u.registry.GetUsersStore().SelectOtherUsers(ctx, caller.UserID, suggestedUsersLimit)
	if err != nil {
		return nil, err
	}
	return u.toViews(users), nil
}

func (u *UsersUsecase) toViews(users []models.User) []models.UserView {
	now := u.now()
	views := make([]models.UserView, len(users))
	for i, user := range users {
		views[i] = models.NewUserView(user, now)
	}
	return views
}
