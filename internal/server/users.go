package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/models"
)

func (s *ChatServer) ResolveCaller(c *gin.Context) {
	user, ok := s.caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *ChatServer) GetCurrentUser(c *gin.Context) {
	user, ok := s.viewer(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *ChatServer) UpdatePresence(c *gin.Context) {
	if _, err := s.users.UpdatePresence(c.Request.Context(), identity(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *ChatServer) SearchUsers(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	users, err := s.users.SearchUsers(c.Request.Context(), viewer, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *ChatServer) SuggestedUsers(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	users, err := s.users.SuggestedUsers(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *ChatServer) ListSearchHistory(c *gin.Context) {
	viewer, ok := s.viewer(c)
	if !ok {
		return
	}
	entries, err := s.history.RecentSearches(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *ChatServer) AddSearchHistory(c *gin.Context) {
	var req searchHistoryRequest
	if !s.bind(c, &req) {
		return
	}
	var entryID *string
	if !s.mutate(c, func(ctx context.Context, caller *models.User) (err error) {
		entryID, err = s.history.AddSearchQuery(ctx, caller, req.Query)
		return err
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry_id": entryID})
}
