package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/models"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

const identityKey = "identity"

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
		} else {
			entry.Debug("request handled")
		}
	}
}

// authenticate attaches the verified identity when a bearer token is present.
// Requests without a token continue anonymously; a bad token is rejected.
func (s *ChatServer) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			respondError(c, fmt.Errorf("%w: %w", usecase.ErrAuthenticationRequired, err))
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identity(c *gin.Context) *models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*models.Identity)
	return id
}

// caller resolves the acting user for mutations, creating it on first sight.
func (s *ChatServer) caller(c *gin.Context) (*models.User, bool) {
	user, err := s.users.ResolveCaller(c.Request.Context(), identity(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return user, true
}

// mutate resolves the caller and runs fn in the same transaction, so a
// rejected mutation leaves the caller's profile untouched. It reports whether
// fn succeeded; on failure the error response is already written.
func (s *ChatServer) mutate(c *gin.Context, fn func(ctx context.Context, caller *models.User) error) bool {
	if err := s.users.AsCaller(c.Request.Context(), identity(c), fn); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

// viewer looks the caller up for queries; anonymous and unknown callers yield nil.
func (s *ChatServer) viewer(c *gin.Context) (*models.User, bool) {
	user, err := s.users.CurrentCaller(c.Request.Context(), identity(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return user, true
}

// bind decodes the JSON body into req and validates it.
func (s *ChatServer) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", usecase.ErrInvalidInput, err))
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(c, fmt.Errorf("%w: %w", usecase.ErrInvalidInput, err))
		return false
	}
	return true
}
