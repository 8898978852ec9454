package models

import (
	"sort"
	"strings"
	"time"
)

// TypingTTL is how long a typing timestamp stays meaningful for readers.
const TypingTTL = 3 * time.Second

const fallbackGroupName = "Group"

type Conversation struct {
	ConversationID      string    `json:"conversation_id" db:"conversation_id"`
	IsGroup             bool      `json:"is_group" db:"is_group"`
	Name                *string   `json:"name,omitempty" db:"name"`
	DirectKey           *string   `json:"-" db:"direct_key"`
	LastMessage         *string   `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt       time.Time `json:"last_message_at" db:"last_message_at"`
	LastMessageSenderID *string   `json:"last_message_sender_id,omitempty" db:"last_message_sender_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// ConversationMember holds the per-participant state of a conversation:
// read cursor, typing timestamp and hidden flag.
type ConversationMember struct {
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	UserID         string     `json:"user_id" db:"user_id"`
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	TypingAt       *time.Time `json:"typing_at,omitempty" db:"typing_at"`
	Hidden         bool       `json:"hidden" db:"hidden"`
}

func (m *ConversationMember) IsTyping(now time.Time) bool {
	return m.TypingAt != nil && now.Sub(*m.TypingAt) < TypingTTL
}

type ConversationWithMembers struct {
	Conversation
	Members []ConversationMember `json:"members"`
}

func (c *ConversationWithMembers) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (c *ConversationWithMembers) Member(userID string) *ConversationMember {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// Counterpart returns the other participant of a direct conversation.
func (c *ConversationWithMembers) Counterpart(viewerID string) string {
	for _, m := range c.Members {
		if m.UserID != viewerID {
			return m.UserID
		}
	}
	return ""
}

// ViewerConversation is a conversation joined with the viewer's own member row.
type ViewerConversation struct {
	Conversation
	LastReadAt  *time.Time `db:"last_read_at"`
	Hidden      bool       `db:"hidden"`
	UnreadCount int        `db:"unread_count"`
}

// DirectKey canonicalizes an unordered pair of users.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

func GroupDisplayName(name *string) string {
	if name == nil || strings.TrimSpace(*name) == "" {
		return fallbackGroupName
	}
	return *name
}

type ConversationView struct {
	ConversationID      string     `json:"conversation_id"`
	IsGroup             bool       `json:"is_group"`
	Name                string     `json:"name"`
	Email               *string    `json:"email,omitempty"`
	ImageURL            *string    `json:"image_url,omitempty"`
	OtherUserID         *string    `json:"other_user_id,omitempty"`
	Participants        []string   `json:"participants"`
	LastMessage         *string    `json:"last_message,omitempty"`
	LastMessageAt       time.Time  `json:"last_message_at"`
	LastMessageSenderID *string    `json:"last_message_sender_id,omitempty"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
	UnreadCount         int        `json:"unread_count"`
	IsTyping            bool       `json:"is_typing"`
	IsOnline            bool       `json:"is_online"`
}
