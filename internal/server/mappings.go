package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/models"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
)

const maxMessagesPage = 200

type directConversationRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type createGroupRequest struct {
	Name           string   `json:"name" validate:"max=100"`
	ParticipantIDs []string `json:"participant_ids" validate:"max=100"`
	Message        *string  `json:"message" validate:"omitempty,max=500"`
}

type sendMessageRequest struct {
	Body        string  `json:"body" validate:"max=4000"`
	ReplyTo     *string `json:"reply_to" validate:"omitempty,max=4000"`
	ReplyToUser *string `json:"reply_to_user" validate:"omitempty,max=200"`
}

type toggleReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

type chatInviteRequest struct {
	UserID  string  `json:"user_id" validate:"required,uuid"`
	Message *string `json:"message" validate:"omitempty,max=500"`
}

type groupInviteRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=100"`
	Message *string  `json:"message" validate:"omitempty,max=500"`
}

type searchHistoryRequest struct {
	Query string `json:"query" validate:"max=200"`
}

type suggestRequest struct {
	Context  string `json:"context" validate:"max=20000"`
	UserName string `json:"userName" validate:"max=200"`
}

// messagesSelect reads the history window from the query string:
// since and until are RFC 3339 timestamps, count is the page size.
func messagesSelect(c *gin.Context) (models.MessagesSelect, error) {
	sel := models.MessagesSelect{ConversationID: c.Param("id")}

	since, err := queryTime(c, "since")
	if err != nil {
		return sel, err
	}
	until, err := queryTime(c, "until")
	if err != nil {
		return sel, err
	}
	sel.Since, sel.Until = since, until

	if raw := c.Query("count"); raw != "" {
		count, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || count == 0 || count > maxMessagesPage {
			return sel, fmt.Errorf("%w: count must be between 1 and %d", usecase.ErrInvalidInput, maxMessagesPage)
		}
		sel.Count = &count
	}
	return sel, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", usecase.ErrInvalidInput, key)
	}
	return &t, nil
}
