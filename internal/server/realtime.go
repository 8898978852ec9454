package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/suggest"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"nhooyr.io/websocket"
)

// Subscribe upgrades to a push-only websocket that receives the caller's updates.
// Browsers can't set headers on websocket requests, so the token may come as a query param.
func (s *ChatServer) Subscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}

	identity, err := s.verifier.Verify(token)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", usecase.ErrAuthenticationRequired, err))
		return
	}
	user, err := s.users.ResolveCaller(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}

	patterns := s.originPatterns()
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:     patterns,
		InsecureSkipVerify: len(patterns) == 0,
	})
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ctx := conn.CloseRead(c.Request.Context())
	client := s.hub.AddClient(user.UserID, conn)
	defer s.hub.RemoveClient(client)

	<-ctx.Done()
}

func (s *ChatServer) SuggestReplies(c *gin.Context) {
	var req suggestRequest
	if !s.bind(c, &req) {
		return
	}
	if identity(c) == nil {
		respondError(c, usecase.ErrAuthenticationRequired)
		return
	}

	suggestions := []string{}
	if s.suggester != nil {
		suggestions = s.suggester.Suggest(c.Request.Context(), suggest.Request{
			Context:  req.Context,
			UserName: req.UserName,
		})
	}
	c.Header("Cache-Control", "no-store, max-age=0")
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
