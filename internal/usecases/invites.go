package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
)

type InvitesUsecase struct {
	registry storage.Registry
	now      Clock
}

func NewInvitesUsecase(r storage.Registry) *InvitesUsecase {
	return &InvitesUsecase{
		registry: r,
		now:      SystemClock,
	}
}

// SendChatInvite asks another user to start a direct conversation. At most one
// pending invite may exist per pair, in either direction.
func (u *InvitesUsecase) SendChatInvite(ctx context.Context, caller *models.User, toUserId string, message *string) (string, error) {
	if caller == nil {
		return "", ErrAuthenticationRequired
	}
	if err := requireUUID("to_user_id", toUserId); err != nil {
		return "", err
	}
	if toUserId == caller.UserID {
		return "", fmt.Errorf("%w: can't invite yourself", ErrInvalidInput)
	}

	now := u.now()
	invite := &models.ChatInvite{
		InviteID:   uuid.NewString(),
		FromUserID: caller.UserID,
		ToUserID:   toUserId,
		Status:     models.InviteStatusPending,
		Message:    optionalText(message),
		CreatedAt:  now,
	}

	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if _, err := r.GetUsersStore().GetUser(ctx, toUserId); err != nil {
			return translateStorageError(err)
		}

		_, err := r.GetConversationsStore().FindDirectConversation(ctx, models.DirectKey(caller.UserID, toUserId))
		if err == nil {
			return fmt.Errorf("%w: conversation with this user already exists", ErrAlreadyExists)
		} else if !errors.Is(err, storage.ErrConversationNotFound) {
			return err
		}

		store := r.GetInvitesStore()
		pending, err := store.HasPendingChatInvite(ctx, caller.UserID, toUserId)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: %w", ErrAlreadyPending, storage.ErrInviteAlreadyPending)
		}

		if err = store.PutChatInvite(ctx, invite); err != nil {
			return translateStorageError(err)
		}
		return r.GetUpdatesStore().InviteChanged(chatInviteChanged(models.UpdateChatInviteCreated, invite, "", now))
	})
	if err != nil {
		return "", err
	}
	return invite.InviteID, nil
}

// AcceptChatInvite accepts an invite addressed to the caller and returns the
// direct conversation of the pair, creating it when needed.
func (u *InvitesUsecase) AcceptChatInvite(ctx context.Context, caller *models.User, inviteId string) (string, error) {
	return u.respondChatInvite(ctx, caller, inviteId, models.InviteStatusAccepted,
		func(r storage.Registry, invite *models.ChatInvite, now time.Time) (string, error) {
			conv, err := getOrCreateDirect(ctx, r, invite.FromUserID, invite.ToUserID, now)
			if err != nil {
				return "", err
			}
			return conv.ConversationID, nil
		})
}

func (u *InvitesUsecase) RejectChatInvite(ctx context.Context, caller *models.User, inviteId string) error {
	_, err := u.respondChatInvite(ctx, caller, inviteId, models.InviteStatusRejected, nil)
	return err
}

func (u *InvitesUsecase) respondChatInvite(
	ctx context.Context,
	caller *models.User,
	inviteId string,
	status models.InviteStatus,
	onAccept func(r storage.Registry, invite *models.ChatInvite, now time.Time) (string, error),
) (string, error) {
	if caller == nil {
		return "", ErrAuthenticationRequired
	}
	if err := requireUUID("invite_id", inviteId); err != nil {
		return "", err
	}

	var conversationId string
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetInvitesStore()
		invite, err := store.GetChatInvite(ctx, inviteId)
		if err != nil {
			return translateStorageError(err)
		}
		if invite.ToUserID != caller.UserID {
			return ErrNotInviteRecipient
		}
		if invite.Status != models.InviteStatusPending {
			return fmt.Errorf("%w: %w", ErrAlreadyResponded, storage.ErrInviteAlreadyResponded)
		}

		now := u.now()
		if onAccept != nil {
			if conversationId, err = onAccept(r, invite, now); err != nil {
				return err
			}
		}

		if err = store.RespondChatInvite(ctx, inviteId, status, now); err != nil {
			return translateStorageError(err)
		}
		invite.Status = status
		return r.GetUpdatesStore().InviteChanged(chatInviteChanged(models.UpdateChatInviteResponded, invite, conversationId, now))
	})
	return conversationId, err
}

func (u *InvitesUsecase) ListIncomingChatInvites(ctx context.Context, caller *models.User) ([]models.ChatInviteView, error) {
	if caller == nil {
		return []models.ChatInviteView{}, nil
	}
	invites, err := u.registry.GetInvitesStore().SelectChatInvites(ctx, squirrel.Eq{
		"to_user_id": caller.UserID,
		"status":     models.InviteStatusPending,
	})
	if err != nil {
		return nil, err
	}
	return u.chatInviteViews(ctx, invites, func(inv models.ChatInvite) string { return inv.FromUserID })
}

func (u *InvitesUsecase) ListOutgoingChatInvites(ctx context.Context, caller *models.User) ([]models.ChatInviteView, error) {
	if caller == nil {
		return []models.ChatInviteView{}, nil
	}
	invites, err := u.registry.GetInvitesStore().SelectChatInvites(ctx, squirrel.Eq{
		"from_user_id": caller.UserID,
		"status":       models.InviteStatusPending,
	})
	if err != nil {
		return nil, err
	}
	return u.chatInviteViews(ctx, invites, func(inv models.ChatInvite) string { return inv.ToUserID })
}

func (u *InvitesUsecase) chatInviteViews(ctx context.Context, invites []models.ChatInvite, counterpart func(models.ChatInvite) string) ([]models.ChatInviteView, error) {
	ids := make([]string, len(invites))
	for i, inv := range invites {
		ids[i] = counterpart(inv)
	}
	users, err := u.registry.GetUsersStore().GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.ChatInviteView, len(invites))
	for i, inv := range invites {
		var user *models.User
		if found, ok := users[ids[i]]; ok {
			user = &found
		}
		views[i] = models.ChatInviteView{
			ChatInvite:  inv,
			Counterpart: models.NewUserSummary(ids[i], user),
		}
	}
	return views, nil
}

// SendGroupInvites invites users into a group the caller belongs to. Members,
// unknown users and users with a pending invite are skipped. Ids of the created
// invites are returned.
func (u *InvitesUsecase) SendGroupInvites(ctx context.Context, caller *models.User, conversationId string, userIds []string, message *string) ([]string, error) {
	if caller == nil {
		return nil, ErrAuthenticationRequired
	}
	if err := requireUUID("conversation_id", conversationId); err != nil {
		return nil, err
	}

	var created []string
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		conv, err := r.GetConversationsStore().GetConversationWithMembers(ctx, conversationId)
		if err != nil {
			return translateStorageError(err)
		}
		if conv.Member(caller.UserID) == nil {
			return ErrUserIsNotAChatMember
		}
		if !conv.IsGroup {
			return fmt.Errorf("%w: only groups accept invites", ErrBusinessLogicViolation)
		}

		created, err = inviteToGroup(ctx, r, conv, caller.UserID, userIds, optionalText(message), u.now())
		return err
	})
	return created, err
}

// AcceptGroupInvite adds the caller to the group and returns its id.
func (u *InvitesUsecase) AcceptGroupInvite(ctx context.Context, caller *models.User, inviteId string) (string, error) {
	return u.respondGroupInvite(ctx, caller, inviteId, models.InviteStatusAccepted)
}

func (u *InvitesUsecase) RejectGroupInvite(ctx context.Context, caller *models.User, inviteId string) error {
	_, err := u.respondGroupInvite(ctx, caller, inviteId, models.InviteStatusRejected)
	return err
}

func (u *InvitesUsecase) respondGroupInvite(ctx context.Context, caller *models.User, inviteId string, status models.InviteStatus) (string, error) {
	if caller == nil {
		return "", ErrAuthenticationRequired
	}
	if err := requireUUID("invite_id", inviteId); err != nil {
		return "", err
	}

	var conversationId string
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetInvitesStore()
		invite, err := store.GetGroupInvite(ctx, inviteId)
		if err != nil {
			return translateStorageError(err)
		}
		if invite.InvitedUserID != caller.UserID {
			return ErrNotInviteRecipient
		}
		if invite.Status != models.InviteStatusPending {
			return fmt.Errorf("%w: %w", ErrAlreadyResponded, storage.ErrInviteAlreadyResponded)
		}

		now := u.now()
		if err = store.RespondGroupInvite(ctx, inviteId, status, now); err != nil {
			return translateStorageError(err)
		}
		invite.Status = status

		updates := r.GetUpdatesStore()
		err = updates.InviteChanged(&models.InviteChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  []string{invite.InvitedByUserID, invite.InvitedUserID},
			},
			Kind:           models.UpdateGroupInviteResponded,
			InviteID:       invite.InviteID,
			ConversationID: invite.ConversationID,
			FromUser:       invite.InvitedByUserID,
			ToUser:         invite.InvitedUserID,
			Status:         status,
		})
		if err != nil || status != models.InviteStatusAccepted {
			return err
		}

		conversations := r.GetConversationsStore()
		if err = conversations.AddMembers(ctx, invite.ConversationID, []string{caller.UserID}, now); err != nil {
			return translateStorageError(err)
		}
		conversationId = invite.ConversationID

		audience, err := getConversationAudience(ctx, conversations, invite.ConversationID)
		if err != nil {
			return err
		}
		return updates.ConversationChanged(&models.ConversationChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  audience,
			},
			Kind:           models.UpdateMemberAdded,
			ConversationID: invite.ConversationID,
			UserID:         caller.UserID,
			IsGroup:        true,
		})
	})
	return conversationId, err
}

// ListGroupInvites returns pending group invites addressed to the caller.
func (u *InvitesUsecase) ListGroupInvites(ctx context.Context, caller *models.User) ([]models.GroupInviteView, error) {
	if caller == nil {
		return []models.GroupInviteView{}, nil
	}

	invites, err := u.registry.GetInvitesStore().SelectGroupInvites(ctx, squirrel.Eq{
		"invited_user_id": caller.UserID,
		"status":          models.InviteStatusPending,
	})
	if err != nil {
		return nil, err
	}

	inviters := make([]string, len(invites))
	for i, inv := range invites {
		inviters[i] = inv.InvitedByUserID
	}
	users, err := u.registry.GetUsersStore().GetUsers(ctx, inviters)
	if err != nil {
		return nil, err
	}

	views := make([]models.GroupInviteView, len(invites))
	for i, inv := range invites {
		var inviter *models.User
		if found, ok := users[inv.InvitedByUserID]; ok {
			inviter = &found
		}
		views[i] = models.GroupInviteView{
			GroupInvite: inv.GroupInvite,
			GroupName:   models.GroupDisplayName(inv.GroupName),
			InvitedBy:   models.NewUserSummary(inv.InvitedByUserID, inviter),
		}
	}
	return views, nil
}

// inviteToGroup creates pending invites for the targets that are known users,
// not yet members and not already invited.
func inviteToGroup(
	ctx context.Context,
	r storage.Registry,
	conv *models.ConversationWithMembers,
	inviterId string,
	targets []string,
	message *string,
	now time.Time,
) ([]string, error) {
	candidates := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, id := range targets {
		if seen[id] || id == inviterId || !ValidateUUID(id) || conv.Member(id) != nil {
			continue
		}
		seen[id] = true
		candidates = append(candidates, id)
	}

	created := make([]string, 0, len(candidates))
	if len(candidates) == 0 {
		return created, nil
	}

	users, err := r.GetUsersStore().GetUsers(ctx, candidates)
	if err != nil {
		return nil, err
	}

	store := r.GetInvitesStore()
	updates := r.GetUpdatesStore()
	for _, id := range candidates {
		if _, ok := users[id]; !ok {
			continue
		}

		invite := &models.GroupInvite{
			InviteID:        uuid.NewString(),
			ConversationID:  conv.ConversationID,
			InvitedUserID:   id,
			InvitedByUserID: inviterId,
			Status:          models.InviteStatusPending,
			Message:         message,
			CreatedAt:       now,
		}
		ok, err := store.PutGroupInvite(ctx, invite)
		if err != nil {
			return nil, translateStorageError(err)
		}
		if !ok {
			continue
		}
		created = append(created, invite.InviteID)

		err = updates.InviteChanged(&models.InviteChanged{
			UpdateMeta: models.UpdateMeta{
				Timestamp: now,
				Audience:  []string{inviterId, id},
			},
			Kind:           models.UpdateGroupInviteCreated,
			InviteID:       invite.InviteID,
			ConversationID: conv.ConversationID,
			FromUser:       inviterId,
			ToUser:         id,
			Status:         models.InviteStatusPending,
		})
		if err != nil {
			return nil, err
		}
	}
	return created, nil
}

func chatInviteChanged(kind models.UpdateKind, invite *models.ChatInvite, conversationId string, now time.Time) *models.InviteChanged {
	return &models.InviteChanged{
		UpdateMeta: models.UpdateMeta{
			Timestamp: now,
			Audience:  []string{invite.FromUserID, invite.ToUserID},
		},
		Kind:           kind,
		InviteID:       invite.InviteID,
		ConversationID: conversationId,
		FromUser:       invite.FromUserID,
		ToUser:         invite.ToUserID,
		Status:         invite.Status,
	}
}
