package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/practice-sem-2/messaging-service/internal/realtime"
	storage "github.com/practice-sem-2/messaging-service/internal/storages"
	"github.com/practice-sem-2/messaging-service/internal/suggest"
	usecase "github.com/practice-sem-2/messaging-service/internal/usecases"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	validToken  = "valid-token"
	allowedSite = "http://localhost:5173"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (*models.Identity, error) {
	if token != validToken {
		return nil, auth.ErrInvalidToken
	}
	return &models.Identity{Subject: "user_1", Name: "Alice"}, nil
}

type fakeSuggester struct {
	got suggest.Request
}

func (f *fakeSuggester) Suggest(ctx context.Context, r suggest.Request) []string {
	f.got = r
	return []string{"Sure", "Later"}
}

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

// ServerTestSuite drives the router without a database: every request here
// is answered before a store is touched.
type ServerTestSuite struct {
	suite.Suite
	router    *gin.Engine
	suggester *fakeSuggester
	pinger    *fakePinger
}

func TestServerTestSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, &ServerTestSuite{})
}

func (s *ServerTestSuite) SetupTest() {
	logger, _ := test.NewNullLogger()
	var registry storage.Registry

	s.suggester = &fakeSuggester{}
	s.pinger = &fakePinger{}
	srv := NewChatServer(Usecases{
		Users:         usecase.NewUsersUsecase(registry),
		Conversations: usecase.NewConversationsUsecase(registry),
		Messages:      usecase.NewMessagesUsecase(registry),
		Invites:       usecase.NewInvitesUsecase(registry),
		SearchHistory: usecase.NewSearchHistoryUsecase(registry),
	}, Options{
		Verifier:    fakeVerifier{},
		Suggester:   s.suggester,
		Hub:         realtime.NewHub(logger),
		Health:      NewHealth(s.pinger),
		CORSOrigins: []string{allowedSite},
	}, logger)
	s.router = srv.Router()
}

func (s *ServerTestSuite) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ServerTestSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body errorEnvelope
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func (s *ServerTestSuite) Test_AnonymousQueriesAreEmpty() {
	for _, path := range []string{
		"/api/v1/conversations",
		"/api/v1/conversations/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/messages",
		"/api/v1/users/search?q=bob",
		"/api/v1/search-history",
		"/api/v1/chat-invites/incoming",
		"/api/v1/group-invites",
	} {
		rec := s.do(http.MethodGet, path, "", "")
		assert.Equal(s.T(), http.StatusOK, rec.Code, path)
		assert.JSONEq(s.T(), `{"data": []}`, rec.Body.String(), path)
	}

	rec := s.do(http.MethodGet, "/api/v1/users/me", "", "")
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "null", rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", "", "")
	assert.Equal(s.T(), http.StatusOK, rec.Code, "invisible conversations read as null")
	assert.Equal(s.T(), "null", rec.Body.String())
}

func (s *ServerTestSuite) Test_MutationsRequireAuthentication() {
	for _, path := range []string{
		"/api/v1/users/me",
		"/api/v1/presence",
		"/api/v1/conversations/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/read",
		"/api/v1/chat-invites/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/accept",
	} {
		rec := s.do(http.MethodPost, path, "", "")
		assert.Equal(s.T(), http.StatusUnauthorized, rec.Code, path)
		assert.Equal(s.T(), "unauthenticated", s.errorCode(rec), path)
	}
}

func (s *ServerTestSuite) Test_InvalidTokenIsRejected() {
	rec := s.do(http.MethodGet, "/api/v1/conversations", "forged", "")
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
	assert.Equal(s.T(), "unauthenticated", s.errorCode(rec))
}

func (s *ServerTestSuite) Test_RequestValidation() {
	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/v1/conversations/direct", `{"user_id": "nope"}`},
		{http.MethodPost, "/api/v1/conversations/direct", `{}`},
		{http.MethodPost, "/api/v1/chat-invites", `{"user_id": ""}`},
		{http.MethodPost, "/api/v1/conversations/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/invites", `{"user_ids": []}`},
		{http.MethodPost, "/api/v1/messages/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/reactions", `{"emoji": ""}`},
		{http.MethodPost, "/api/v1/conversations/group", `not json`},
		{http.MethodGet, "/api/v1/conversations/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/messages?count=0", ""},
		{http.MethodGet, "/api/v1/conversations/6a1d3c7e-3f39-4b6c-9f57-0c7b0f5a9b11/messages?since=yesterday", ""},
	}

	for _, c := range cases {
		rec := s.do(c.method, c.path, validToken, c.body)
		assert.Equal(s.T(), http.StatusBadRequest, rec.Code, c.path+" "+c.body)
		assert.Equal(s.T(), "invalid_input", s.errorCode(rec), c.path+" "+c.body)
	}
}

func (s *ServerTestSuite) Test_SuggestReplies() {
	rec := s.do(http.MethodPost, "/api/v1/ai/suggest", validToken, `{"context": "hi", "userName": "Alice"}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.JSONEq(s.T(), `{"suggestions": ["Sure", "Later"]}`, rec.Body.String())
	assert.Equal(s.T(), suggest.Request{Context: "hi", UserName: "Alice"}, s.suggester.got)

	rec = s.do(http.MethodPost, "/api/v1/ai/suggest", "", `{"context": "hi"}`)
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
}

func (s *ServerTestSuite) Test_Subscribe_RequiresToken() {
	rec := s.do(http.MethodGet, "/ws", "", "")
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/ws?token=forged", "", "")
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
}

func (s *ServerTestSuite) Test_Healthz() {
	rec := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(s.T(), http.StatusOK, rec.Code)

	s.pinger.err = errors.New("connection refused")
	rec = s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(s.T(), http.StatusServiceUnavailable, rec.Code)
}

func (s *ServerTestSuite) Test_CORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/conversations", nil)
	req.Header.Set("Origin", allowedSite)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), allowedSite, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/conversations", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(s.T(), http.StatusForbidden, rec.Code)
}

func TestWrapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{usecase.ErrAuthenticationRequired, http.StatusUnauthorized, "unauthenticated"},
		{usecase.ErrUserIsNotAChatMember, http.StatusForbidden, "not_authorized"},
		{usecase.ErrNotMessageSender, http.StatusForbidden, "not_authorized"},
		{usecase.ErrNotInviteRecipient, http.StatusForbidden, "not_authorized"},
		{fmt.Errorf("%w: %w", usecase.ErrNotFound, storage.ErrMessageNotFound), http.StatusNotFound, "not_found"},
		{usecase.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{usecase.ErrAlreadyPending, http.StatusConflict, "already_pending"},
		{usecase.ErrAlreadyResponded, http.StatusConflict, "already_responded"},
		{usecase.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{usecase.ErrBusinessLogicViolation, http.StatusBadRequest, "invalid_input"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, c := range cases {
		status, body := wrapError(c.err)
		assert.Equal(t, c.status, status, c.err.Error())
		assert.Equal(t, c.code, body.Code, c.err.Error())
	}

	_, body := wrapError(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal error", body.Message, "internal details are not exposed")
}
