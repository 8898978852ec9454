package models

import "time"

// DeletedMessagePlaceholder replaces the body of soft-deleted messages on read.
const DeletedMessagePlaceholder = "This message was deleted"

type Message struct {
	MessageID      string    `json:"message_id" db:"message_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	Deleted        bool      `json:"deleted" db:"deleted"`
	ReplyTo        *string   `json:"reply_to,omitempty" db:"reply_to"`
	ReplyToUser    *string   `json:"reply_to_user,omitempty" db:"reply_to_user"`
}

// VisibleBody is the body as readers see it.
func (m *Message) VisibleBody() string {
	if m.Deleted {
		return DeletedMessagePlaceholder
	}
	return m.Body
}

type Reaction struct {
	MessageID string `db:"message_id"`
	UserID    string `db:"user_id"`
	Emoji     string `db:"emoji"`
}

type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type MessageView struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Body           string          `json:"body"`
	CreatedAt      time.Time       `json:"created_at"`
	Deleted        bool            `json:"deleted"`
	Sender         UserSummary     `json:"sender"`
	Reactions      []ReactionCount `json:"reactions"`
	UserReaction   *string         `json:"user_reaction,omitempty"`
	ReplyTo        *string         `json:"reply_to,omitempty"`
	ReplyToUser    *string         `json:"reply_to_user,omitempty"`
}

type MessagesSelect struct {
	ConversationID string
	Since          *time.Time
	Until          *time.Time
	Count          *uint64
}
