package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

func (s *ChatServer) ListMessages(c *gin.Context) {
	sel, err := messagesSelect(c)
	if err != nil {
		respondError(c, err)
		return
	}
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	messages, err := s.messages.ListMessages(c.Request.Context(), viewer, sel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

// SendMessage answers with a null message_id when the body is blank.
func (s *ChatServer) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !s.bind(c, &req) {
		return
	}
	var id *string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		id, err = s.messages.SendMessage(ctx, caller, c.Param("id"), req.Body, req.ReplyTo, req.ReplyToUser)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id})
}

func (s *ChatServer) DeleteMessage(c *gin.Context) {
	if !s.mutate(c, func(ctx context.Context, caller *models.User) error {
		return s.messages.DeleteMessage(ctx, caller, c.Param("id"))
	}) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *ChatServer) ToggleReaction(c *gin.Context) {
	var req toggleReactionRequest
	if !s.bind(c, &req) {
		return
	}
	if !s.mutate(c, func(ctx context.Context, caller *models.User) error {
		return s.messages.ToggleReaction(ctx, caller, c.Param("id"), req.Emoji)
	}) {
		return
	}
	c.Status(http.StatusNoContent)
}
