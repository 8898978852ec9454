package models

import "time"

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRejected InviteStatus = "rejected"
)

type ChatInvite struct {
	InviteID    string       `json:"invite_id" db:"invite_id"`
	FromUserID  string       `json:"from_user_id" db:"from_user_id"`
	ToUserID    string       `json:"to_user_id" db:"to_user_id"`
	Status      InviteStatus `json:"status" db:"status"`
	Message     *string      `json:"message,omitempty" db:"message"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	RespondedAt *time.Time   `json:"responded_at,omitempty" db:"responded_at"`
}

type GroupInvite struct {
	InviteID        string       `json:"invite_id" db:"invite_id"`
	ConversationID  string       `json:"conversation_id" db:"conversation_id"`
	InvitedUserID   string       `json:"invited_user_id" db:"invited_user_id"`
	InvitedByUserID string       `json:"invited_by_user_id" db:"invited_by_user_id"`
	Status          InviteStatus `json:"status" db:"status"`
	Message         *string      `json:"message,omitempty" db:"message"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	RespondedAt     *time.Time   `json:"responded_at,omitempty" db:"responded_at"`
}

// NamedGroupInvite is a group invite together with the current name of its group.
type NamedGroupInvite struct {
	GroupInvite
	GroupName *string `db:"group_name"`
}

type ChatInviteView struct {
	ChatInvite
	Counterpart UserSummary `json:"counterpart"`
}

type GroupInviteView struct {
	GroupInvite
	GroupName string      `json:"group_name"`
	InvitedBy UserSummary `json:"invited_by"`
}
