package models

import "time"

type UpdateKind string

const (
	UpdateMessageSent          UpdateKind = "message_sent"
	UpdateMessageDeleted       UpdateKind = "message_deleted"
	UpdateReactionToggled      UpdateKind = "reaction_toggled"
	UpdateConversationCreated  UpdateKind = "conversation_created"
	UpdateConversationRead     UpdateKind = "conversation_read"
	UpdateTypingChanged        UpdateKind = "typing_changed"
	UpdateConversationHidden   UpdateKind = "conversation_hidden"
	UpdateMemberAdded          UpdateKind = "member_added"
	UpdateChatInviteCreated    UpdateKind = "chat_invite_created"
	UpdateChatInviteResponded  UpdateKind = "chat_invite_responded"
	UpdateGroupInviteCreated   UpdateKind = "group_invite_created"
	UpdateGroupInviteResponded UpdateKind = "group_invite_responded"
)

type UpdateMeta struct {
	Timestamp time.Time
	Audience  []string `validate:"required,min=1,dive,uuid"`
}

type MessageSent struct {
	UpdateMeta
	MessageID      string  `validate:"required,uuid"`
	FromUser       string  `validate:"required,uuid"`
	ConversationID string  `validate:"required,uuid"`
	Text           string  `validate:"required"`
	ReplyTo        *string `validate:"omitempty"`
}

// MessageChanged covers deletes and reaction toggles.
type MessageChanged struct {
	UpdateMeta
	Kind           UpdateKind `validate:"required"`
	MessageID      string     `validate:"required,uuid"`
	ConversationID string     `validate:"required,uuid"`
	UserID         string     `validate:"required,uuid"`
	Emoji          string
}

// ConversationChanged covers creation, membership and per-viewer state changes.
type ConversationChanged struct {
	UpdateMeta
	Kind           UpdateKind `validate:"required"`
	ConversationID string     `validate:"required,uuid"`
	UserID         string     `validate:"required,uuid"`
	IsGroup        bool
}

type InviteChanged struct {
	UpdateMeta
	Kind           UpdateKind   `validate:"required"`
	InviteID       string       `validate:"required,uuid"`
	ConversationID string       `validate:"omitempty,uuid"`
	FromUser       string       `validate:"required,uuid"`
	ToUser         string       `validate:"required,uuid"`
	Status         InviteStatus `validate:"required"`
}
