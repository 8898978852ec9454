package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

func (s *ChatServer) ListConversations(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	convs, err := s.conversations.ListConversations(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": convs})
}

// GetConversation answers with null when the conversation is not visible to the caller.
func (s *ChatServer) GetConversation(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	conv, err := s.conversations.GetConversation(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *ChatServer) ListMembers(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	members, err := s.conversations.ListMembers(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *ChatServer) GetOrCreateDirectConversation(c *gin.Context) {
	var req directConversationRequest
	if !s.bind(c, &req) {
		return
	}
	var id string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		id, err = s.conversations.GetOrCreateDirectConversation(ctx, caller, req.UserID)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

func (s *ChatServer) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if !s.bind(c, &req) {
		return
	}
	var id string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		id, err = s.conversations.CreateGroup(ctx, caller, req.Name, req.ParticipantIDs, req.Message)
		return err
	}) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
}

func (s *ChatServer) MarkRead(c *gin.Context) {
	s.memberAction(c, s.conversations.MarkRead)
}

func (s *ChatServer) SetTyping(c *gin.Context) {
	s.memberAction(c, s.conversations.SetTyping)
}

func (s *ChatServer) ClearTyping(c *gin.Context) {
	s.memberAction(c, s.conversations.ClearTyping)
}

func (s *ChatServer) HideConversation(c *gin.Context) {
	s.memberAction(c, s.conversations.HideConversation)
}

func (s *ChatServer) memberAction(c *gin.Context, action func(context.Context, *models.User, string) error) {
	if !s.mutate(c, func(ctx context.Context, caller *models.User) error {
		return action(ctx, caller, c.Param("id"))
	}) {
		return
	}
	c.Status(http.StatusNoContent)
}
