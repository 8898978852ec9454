package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

func (s *ChatServer) SendChatInvite(c *gin.Context) {
	var req chatInviteRequest
	if !s.bind(c, &req) {
		return
	}
	var id string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		id, err = s.invites.SendChatInvite(ctx, caller, req.UserID, req.Message)
		return err
	}) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invite_id": id})
}

func (s *ChatServer) AcceptChatInvite(c *gin.Context) {
	s.acceptInvite(c, s.invites.AcceptChatInvite)
}

func (s *ChatServer) RejectChatInvite(c *gin.Context) {
	s.rejectInvite(c, s.invites.RejectChatInvite)
}

func (s *ChatServer) ListIncomingChatInvites(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	invites, err := s.invites.ListIncomingChatInvites(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invites})
}

func (s *ChatServer) ListOutgoingChatInvites(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	invites, err := s.invites.ListOutgoingChatInvites(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invites})
}

func (s *ChatServer) SendGroupInvites(c *gin.Context) {
	var req groupInviteRequest
	if !s.bind(c, &req) {
		return
	}
	var ids []string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		ids, err = s.invites.SendGroupInvites(ctx, caller, c.Param("id"), req.UserIDs, req.Message)
		return err
	}) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invite_ids": ids})
}

func (s *ChatServer) AcceptGroupInvite(c *gin.Context) {
	s.acceptInvite(c, s.invites.AcceptGroupInvite)
}

func (s *ChatServer) RejectGroupInvite(c *gin.Context) {
	s.rejectInvite(c, s.invites.RejectGroupInvite)
}

func (s *ChatServer) ListGroupInvites(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	invites, err := s.invites.ListGroupInvites(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invites})
}

func (s *ChatServer) acceptInvite(c *gin.Context, accept func(context.Context, *models.User, string) (string, error)) {
	var conversationID string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		conversationID, err = accept(ctx, caller, c.Param("id"))
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID})
}

func (s *ChatServer) rejectInvite(c *gin.Context, reject func(context.Context, *models.User, string) error) {
	if !s.mutate(c, func(ctx context.Context, caller *models.User) error {
		return reject(ctx, caller, c.Param("id"))
	}) {
		return
	}
	c.Status(http.StatusNoContent)
}
