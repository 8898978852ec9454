package server

import (
	"context"
	"net/url"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/practice-sem-2/messaging-service/internal/realtime"
	"github.com/practice-sem-2/messaging-service/internal/suggest"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

type TokenVerifier interface {
	Verify(token string) (*models.Identity, error)
}

type Suggester interface {
	Suggest(ctx context.Context, r suggest.Request) []string
}

type Usecases struct {
	Users         *usecase.UsersUsecase
	Conversations *usecase.ConversationsUsecase
	Messages      *usecase.MessagesUsecase
	Invites       *usecase.InvitesUsecase
	SearchHistory *usecase.SearchHistoryUsecase
}

type Options struct {
	Verifier    TokenVerifier
	Validate    *validator.Validate
	Suggester   Suggester
	Hub         *realtime.Hub
	Health      *Health
	CORSOrigins []string
}

type ChatServer struct {
	users         *usecase.UsersUsecase
	conversations *usecase.ConversationsUsecase
	messages      *usecase.MessagesUsecase
	invites       *usecase.InvitesUsecase
	history       *usecase.SearchHistoryUsecase

	verifier  TokenVerifier
	validate  *validator.Validate
	suggester Suggester
	hub       *realtime.Hub
	health    *Health
	origins   []string
	log       logrus.FieldLogger
}

func NewChatServer(u Usecases, opts Options, log logrus.FieldLogger) *ChatServer {
	validate := opts.Validate
	if validate == nil {
		validate = validator.New()
	}
	return &ChatServer{
		users:         u.Users,
		conversations: u.Conversations,
		messages:      u.Messages,
		invites:       u.Invites,
		history:       u.SearchHistory,
		verifier:      opts.Verifier,
		validate:      validate,
		suggester:     opts.Suggester,
		hub:           opts.Hub,
		health:        opts.Health,
		origins:       opts.CORSOrigins,
		log:           log.WithField("component", "server"),
	}
}

func (s *ChatServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), s.cors())

	if s.health != nil {
		r.GET("/healthz", s.health.Handle)
	}
	if s.hub != nil {
		r.GET("/ws", s.Subscribe)
	}

	api := r.Group("/api/v1", s.authenticate())

	api.POST("/users/me", s.ResolveCaller)
	api.GET("/users/me", s.GetCurrentUser)
	api.POST("/presence", s.UpdatePresence)
	api.GET("/users/search", s.SearchUsers)
	api.GET("/users/suggested", s.SuggestedUsers)
	api.GET("/search-history", s.ListSearchHistory)
	api.POST("/search-history", s.AddSearchHistory)

	api.GET("/conversations", s.ListConversations)
	api.POST("/conversations/direct", s.GetOrCreateDirectConversation)
	api.POST("/conversations/group", s.CreateGroup)
	api.GET("/conversations/:id", s.GetConversation)
	api.GET("/conversations/:id/members", s.ListMembers)
	api.GET("/conversations/:id/messages", s.ListMessages)
	api.POST("/conversations/:id/messages", s.SendMessage)
	api.POST("/conversations/:id/read", s.MarkRead)
	api.POST("/conversations/:id/typing", s.SetTyping)
	api.DELETE("/conversations/:id/typing", s.ClearTyping)
	api.POST("/conversations/:id/hide", s.HideConversation)
	api.POST("/conversations/:id/invites", s.SendGroupInvites)

	api.DELETE("/messages/:id", s.DeleteMessage)
	api.POST("/messages/:id/reactions", s.ToggleReaction)

	api.GET("/chat-invites/incoming", s.ListIncomingChatInvites)
	api.GET("/chat-invites/outgoing", s.ListOutgoingChatInvites)
	api.POST("/chat-invites", s.SendChatInvite)
	api.POST("/chat-invites/:id/accept", s.AcceptChatInvite)
	api.POST("/chat-invites/:id/reject", s.RejectChatInvite)

	api.GET("/group-invites", s.ListGroupInvites)
	api.POST("/group-invites/:id/accept", s.AcceptGroupInvite)
	api.POST("/group-invites/:id/reject", s.RejectGroupInvite)

	api.POST("/ai/suggest", s.SuggestReplies)

	return r
}

func (s *ChatServer) cors() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", "X-Requested-With"}
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	if len(s.origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// originPatterns turns configured CORS origins into host patterns for the
// websocket origin check.
func (s *ChatServer) originPatterns() []string {
	patterns := make([]string, 0, len(s.origins))
	for _, origin := range s.origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
