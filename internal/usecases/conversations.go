package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type ConversationsUsecase struct {
	registry storage.Registry
	now      Clock
}

func NewConversationsUsecase(r storage.Registry) *ConversationsUsecase {
	return &ConversationsUsecase{
		registry: r,
		now:      SystemClock,
	}
}

// ListConversations returns the caller's visible conversations, most recent activity first.
func (u *ConversationsUsecase) ListConversations(ctx context.Context, caller *models.User) ([]models.ConversationView, error) {
	if caller == nil {
		return []models.ConversationView{}, nil
	}

	store := u.registry.GetConversationsStore()
	convs, err := store.SelectViewerConversations(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ConversationID
	}
	members, err := store.GetMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	byConversation := make(map[string][]models.ConversationMember, len(convs))
	counterparts := make([]string, 0)
	for _, m := range members {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
		if m.UserID != caller.UserID {
			counterparts = append(counterparts, m.UserID)
		}
	}

	users, err := u.registry.GetUsersStore().GetUsers(ctx, counterparts)
	if err != nil {
		return nil, err
	}

	now := u.now()
	views := make([]models.ConversationView, len(convs))
	for i, c := range convs {
		views[i] = BuildConversationView(c.Conversation, byConversation[c.ConversationID], caller.UserID, c.UnreadCount, users, now)
	}
	return views, nil
}

// GetConversation returns the caller's view of one conversation, or nil when it
// does not exist or the caller does not take part in it.
func (u *ConversationsUsecase) GetConversation(ctx context.Context, caller *models.User, conversationId string) (*models.ConversationView, error) {
	if caller == nil || !ValidateUUID(conversationId) {
		return nil, nil
	}

	var view *models.ConversationView
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		conv, err := r.GetConversationsStore().GetConversationWithMembers(ctx, conversationId)
		if errors.Is(err, storage.ErrConversationNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		member := conv.Member(caller.UserID)
		if member == nil {
			return nil
		}

		unread, err := r.GetMessagesStore().CountUnread(ctx, conversationId, caller.UserID, member.LastReadAt)
		if err != nil {
			return err
		}

		users := map[string]models.User{}
		if !conv.IsGroup {
			users, err = r.GetUsersStore().GetUsers(ctx, []string{conv.Counterpart(caller.UserID)})
			if err != nil {
				return err
			}
		}

		v := BuildConversationView(conv.Conversation, conv.Members, caller.UserID, unread, users, u.now())
		view = &v
		return nil
	})
	return view, err
}

// GetOrCreateDirectConversation returns the id of the direct conversation between
// the caller and the other user, creating it on first use.
func (u *ConversationsUsecase) GetOrCreateDirectConversation(ctx context.Context, caller *models.User, otherUserId string) (string, error) {
	if caller == nil {
		return "", ErrAuthenticationRequired
	}
	if err := requireUUID("other_user_id", otherUserId); err != nil {
		return "", err
	}
	if otherUserId == caller.UserID {
		return "", fmt.Errorf("%w: can't start a conversation with yourself", ErrInvalidInput)
	}

	var conversationId string
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if _, err := r.GetUsersStore().GetUser(ctx, otherUserId); err != nil {
			return translateStorageError(err)
		}

		conv, err := getOrCreateDirect(ctx, r, caller.UserID, otherUserId, u.now())
		if err != nil {
			return err
		}
		conversationId = conv.ConversationID
		return nil
	})
	return conversationId, err
}

// CreateGroup creates a group with the caller as its only member and invites
// the listed users. Invitees become members once they accept.
func (u *ConversationsUsecase) CreateGroup(ctx context.Context, caller *models.User, name string, participantIds []string, message *string) (string, error) {
	if caller == nil {
		return "", ErrAuthenticationRequired
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: group name can't be empty", ErrInvalidInput)
	}

	now := u.now()
	conv := &models.ConversationWithMembers{
		Conversation: models.Conversation{
			ConversationID: uuid.NewString(),
			IsGroup:        true,
			Name:           &name,
			LastMessageAt:  now,
			CreatedAt:      now,
		},
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetConversationsStore()
		if err := store.CreateConversation(ctx, &conv.Conversation); err != nil {
			return translateStorageError(err)
		}
		if err := store.AddMembers(ctx, conv.ConversationID, []string{caller.UserID}, now); err != nil {
			return translateStorageError(err)
		}
		conv.Members = []models.ConversationMember{{
			ConversationID: conv.ConversationID,
			UserID:         caller.UserID,
			JoinedAt:       now,
		}}

		err := r.GetUpdatesStore().ConversationChanged(&models.ConversationChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  []string{caller.UserID},
			},
			Kind:           models.UpdateConversationCreated,
			ConversationID: conv.ConversationID,
			UserID:         caller.UserID,
			IsGroup:        true,
		})
		if err != nil {
			return err
		}

		_, err = inviteToGroup(ctx, r, conv, caller.UserID, participantIds, optionalText(message), now)
		return err
	})
	if err != nil {
		return "", err
	}
	return conv.ConversationID, nil
}

// MarkRead moves the caller's read cursor to now.
func (u *ConversationsUsecase) MarkRead(ctx context.Context, caller *models.User, conversationId string) error {
	return u.changeMemberState(ctx, caller, conversationId, models.UpdateConversationRead, false,
		func(store *storage.ConversationsStorage, now time.Time) error {
			return store.MarkRead(ctx, conversationId, caller.UserID, now)
		})
}

// SetTyping records that the caller is typing. The mark expires after models.TypingTTL.
func (u *ConversationsUsecase) SetTyping(ctx context.Context, caller *models.User, conversationId string) error {
	return u.changeMemberState(ctx, caller, conversationId, models.UpdateTypingChanged, true,
		func(store *storage.ConversationsStorage, now time.Time) error {
			return store.SetTyping(ctx, conversationId, caller.UserID, &now)
		})
}

func (u *ConversationsUsecase) ClearTyping(ctx context.Context, caller *models.User, conversationId string) error {
	return u.changeMemberState(ctx, caller, conversationId, models.UpdateTypingChanged, true,
		func(store *storage.ConversationsStorage, _ time.Time) error {
			return store.SetTyping(ctx, conversationId, caller.UserID, nil)
		})
}

// HideConversation removes the conversation from the caller's list until a new message arrives.
func (u *ConversationsUsecase) HideConversation(ctx context.Context, caller *models.User, conversationId string) error {
	return u.changeMemberState(ctx, caller, conversationId, models.UpdateConversationHidden, false,
		func(store *storage.ConversationsStorage, _ time.Time) error {
			return store.Hide(ctx, conversationId, caller.UserID)
		})
}

// changeMemberState applies a change to the caller's own member row and
// announces it, either to the caller alone or to every member.
func (u *ConversationsUsecase) changeMemberState(
	ctx context.Context,
	caller *models.User,
	conversationId string,
	kind models.UpdateKind,
	toEveryone bool,
	change func(store *storage.ConversationsStorage, now time.Time) error,
) error {
	if caller == nil {
		return ErrAuthenticationRequired
	}
	if err := requireUUID("conversation_id", conversationId); err != nil {
		return err
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetConversationsStore()
		conv, err := store.GetConversationWithMembers(ctx, conversationId)
		if err != nil {
			return translateStorageError(err)
		}
		if conv.Member(caller.UserID) == nil {
			return ErrUserIsNotAChatMember
		}

		now := u.now()
		if err = change(store, now); err != nil {
			return translateStorageError(err)
		}

		audience := []string{caller.UserID}
		if toEveryone {
			audience = conv.MemberIDs()
		}
		return r.GetUpdatesStore().ConversationChanged(&models.ConversationChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  audience,
			},
			Kind:           kind,
			ConversationID: conversationId,
			UserID:         caller.UserID,
			IsGroup:        conv.IsGroup,
		})
	})
}

// ListMembers returns the participants of a conversation the caller takes part in, in join order.
func (u *ConversationsUsecase) ListMembers(ctx context.Context, caller *models.User, conversationId string) ([]models.UserView, error) {
	if caller == nil {
		return []models.UserView{}, nil
	}
	if err := requireUUID("conversation_id", conversationId); err != nil {
		return nil, err
	}

	var views []models.UserView
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		conv, err := r.GetConversationsStore().GetConversationWithMembers(ctx, conversationId)
		if err != nil {
			return translateStorageError(err)
		}
		if conv.Member(caller.UserID) == nil {
			return ErrUserIsNotAChatMember
		}

		users, err := r.GetUsersStore().GetUsers(ctx, conv.MemberIDs())
		if err != nil {
			return err
		}

		now := u.now()
		views = make([]models.UserView, 0, len(conv.Members))
		for _, m := range conv.Members {
			if user, ok := users[m.UserID]; ok {
				views = append(views, models.NewUserView(user, now))
			}
		}
		return nil
	})
	return views, err
}

func requireMember(ctx context.Context, store *storage.ConversationsStorage, conversationId, userId string) error {
	isMember, err := store.UserIsMember(ctx, conversationId, userId)
	if err != nil {
		return translateStorageError(err)
	}
	if !isMember {
		return ErrUserIsNotAChatMember
	}
	return nil
}

func getConversationAudience(ctx context.Context, store *storage.ConversationsStorage, conversationId string) ([]string, error) {
	conv, err := store.GetConversationWithMembers(ctx, conversationId)
	if err != nil {
		return nil, fmt.Errorf("can't get conversation members: %w", err)
	}
	return conv.MemberIDs(), nil
}

// getOrCreateDirect returns the single direct conversation of the pair. When two
// transactions race, the loser's insert is a no-op and it reads the winner's row.
func getOrCreateDirect(ctx context.Context, r storage.Registry, a, b string, now time.Time) (*models.Conversation, error) {
	store := r.GetConversationsStore()
	key := models.DirectKey(a, b)

	conv, err := store.FindDirectConversation(ctx, key)
	if err == nil {
		return conv, nil
	} else if !errors.Is(err, storage.ErrConversationNotFound) {
		return nil, err
	}

	conv = &models.Conversation{
		ConversationID: uuid.NewString(),
		DirectKey:      &key,
		LastMessageAt:  now,
		CreatedAt:      now,
	}
	created, err := store.PutDirectConversation(ctx, conv)
	if err != nil {
		return nil, translateStorageError(err)
	}
	if !created {
		conv, err = store.FindDirectConversation(ctx, key)
		return conv, translateStorageError(err)
	}

	if err = store.AddMembers(ctx, conv.ConversationID, []string{a, b}, now); err != nil {
		return nil, translateStorageError(err)
	}

	return conv, r.GetUpdatesStore().ConversationChanged(&models.ConversationChanged{
		UpdateMeta: models.UpdateMeta{
			Timestamp: now,
			Audience:  []string{a, b},
		},
		Kind:           models.UpdateConversationCreated,
		ConversationID: conv.ConversationID,
		UserID:         a,
		IsGroup:        false,
	})
}
