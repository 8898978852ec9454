package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ConversationsStorageTestSuite struct {
	PostgresTestSuite
}

func TestConversationsStorageTestSuite(t *testing.T) {
	suite.Run(t, &ConversationsStorageTestSuite{})
}

func (s *ConversationsStorageTestSuite) newConversation(isGroup bool) *models.Conversation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Conversation{
		ConversationID: uuid.NewString(),
		IsGroup:        isGroup,
		LastMessageAt:  now,
		CreatedAt:      now,
	}
}

func (s *ConversationsStorageTestSuite) Test_CreateConversation() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewConversationsStorage(s.DB)
	conv := s.newConversation(true)
	err := store.CreateConversation(ctx, conv)
	assert.NoError(s.T(), err, "should correctly create conversation")

	count := 0
	err = s.DB.Get(&count, "SELECT count(*) FROM conversations WHERE conversation_id = $1", conv.ConversationID)
	assert.NoError(s.T(), err, "should be scanned correctly")
	assert.Equal(s.T(), 1, count, "should be exactly 1 row")

	assert.ErrorIs(s.T(), store.CreateConversation(ctx, conv), ErrConversationAlreadyExists)
}

func (s *ConversationsStorageTestSuite) Test_PutDirectConversation_OnePerPair() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := s.CreateUser("Alice"), s.CreateUser("Bob")
	key := models.DirectKey(a.UserID, b.UserID)
	store := NewConversationsStorage(s.DB)

	first := s.newConversation(false)
	first.DirectKey = &key
	created, err := store.PutDirectConversation(ctx, first)
	require.NoError(s.T(), err)
	assert.True(s.T(), created, "first insert should create a row")

	second := s.newConversation(false)
	second.DirectKey = &key
	created, err = store.PutDirectConversation(ctx, second)
	require.NoError(s.T(), err)
	assert.False(s.T(), created, "second insert for the same pair should be a no-op")

	found, err := store.FindDirectConversation(ctx, models.DirectKey(b.UserID, a.UserID))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first.ConversationID, found.ConversationID)
}

func (s *ConversationsStorageTestSuite) Test_AddMembers() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := s.CreateUser("Alice"), s.CreateUser("Bob")
	store := NewConversationsStorage(s.DB)
	conv := s.newConversation(true)
	require.NoError(s.T(), store.CreateConversation(ctx, conv))

	now := time.Now().UTC()
	err := store.AddMembers(ctx, conv.ConversationID, []string{a.UserID}, now)
	assert.NoError(s.T(), err, "should correctly add members")
	err = store.AddMembers(ctx, conv.ConversationID, []string{a.UserID, b.UserID}, now.Add(time.Second))
	assert.NoError(s.T(), err, "existing members should be skipped")

	withMembers, err := store.GetConversationWithMembers(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{a.UserID, b.UserID}, withMembers.MemberIDs(), "members should be in join order")

	assert.ErrorIs(s.T(), store.AddMembers(ctx, conv.ConversationID, nil, now), ErrEmptyMembers)
	assert.ErrorIs(s.T(), store.AddMembers(ctx, uuid.NewString(), []string{a.UserID}, now), ErrConversationNotFound)
}

func (s *ConversationsStorageTestSuite) Test_AddMembers_Atomic() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := s.CreateUser("Alice")
	conv := s.newConversation(true)
	registry := NewRegistry(s.DB, nil, nil)

	err := registry.Atomic(ctx, func(r Registry) error {
		store := r.GetConversationsStore()
		err := store.CreateConversation(ctx, conv)
		assert.NoError(s.T(), err, "should correctly create conversation")

		err = store.AddMembers(ctx, conv.ConversationID, []string{a.UserID}, time.Now())
		assert.NoError(s.T(), err, "should correctly add member")
		return errors.New("bang")
	})
	assert.Error(s.T(), err, "should return error")

	count := 0
	err = s.DB.Get(&count, "SELECT count(*) FROM conversations WHERE conversation_id = $1", conv.ConversationID)
	assert.NoError(s.T(), err, "rows count should be correctly scanned")
	assert.Equal(s.T(), 0, count, "whole transaction should be rolled back")
}

func (s *ConversationsStorageTestSuite) Test_UserIsMember() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := s.CreateUser("Alice"), s.CreateUser("Bob")
	store := NewConversationsStorage(s.DB)
	conv := s.newConversation(true)
	require.NoError(s.T(), store.CreateConversation(ctx, conv))
	require.NoError(s.T(), store.AddMembers(ctx, conv.ConversationID, []string{a.UserID}, time.Now()))

	isMember, err := store.UserIsMember(ctx, conv.ConversationID, a.UserID)
	assert.NoError(s.T(), err)
	assert.True(s.T(), isMember, "user is member")

	isMember, err = store.UserIsMember(ctx, conv.ConversationID, b.UserID)
	assert.NoError(s.T(), err)
	assert.False(s.T(), isMember, "user is not member")

	_, err = store.UserIsMember(ctx, uuid.NewString(), a.UserID)
	assert.ErrorIs(s.T(), err, ErrConversationNotFound)
}

func (s *ConversationsStorageTestSuite) Test_SelectViewerConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := s.CreateUser("Alice"), s.CreateUser("Bob")
	store := NewConversationsStorage(s.DB)
	messages := NewMessagesStorage(s.DB)
	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)

	older := s.newConversation(true)
	older.LastMessageAt = base
	newer := s.newConversation(true)
	newer.LastMessageAt = base.Add(time.Minute)
	hidden := s.newConversation(true)
	hidden.LastMessageAt = base.Add(2 * time.Minute)

	for _, conv := range []*models.Conversation{older, newer, hidden} {
		require.NoError(s.T(), store.CreateConversation(ctx, conv))
		require.NoError(s.T(), store.AddMembers(ctx, conv.ConversationID, []string{a.UserID, b.UserID}, base))
	}
	require.NoError(s.T(), store.Hide(ctx, hidden.ConversationID, a.UserID))

	for i := 0; i < 3; i++ {
		require.NoError(s.T(), messages.PutMessage(ctx, &models.Message{
			MessageID:      uuid.NewString(),
			ConversationID: older.ConversationID,
			SenderID:       b.UserID,
			Body:           "hi",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(s.T(), store.MarkRead(ctx, older.ConversationID, a.UserID, base))

	convs, err := store.SelectViewerConversations(ctx, a.UserID)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 2, "hidden conversation should not be listed")
	assert.Equal(s.T(), newer.ConversationID, convs[0].ConversationID, "most recent activity first")
	assert.Equal(s.T(), older.ConversationID, convs[1].ConversationID)
	assert.Equal(s.T(), 2, convs[1].UnreadCount, "messages after the read cursor are unread")

	convs, err = store.SelectViewerConversations(ctx, b.UserID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), convs, 3, "hiding is per user")

	require.NoError(s.T(), store.UnhideForAll(ctx, hidden.ConversationID))
	convs, err = store.SelectViewerConversations(ctx, a.UserID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), convs, 3, "unhidden conversation should be listed again")
}

func (s *ConversationsStorageTestSuite) Test_MemberState() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := s.CreateUser("Alice"), s.CreateUser("Bob")
	store := NewConversationsStorage(s.DB)
	conv := s.newConversation(true)
	require.NoError(s.T(), store.CreateConversation(ctx, conv))
	require.NoError(s.T(), store.AddMembers(ctx, conv.ConversationID, []string{a.UserID}, time.Now()))

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(s.T(), store.SetTyping(ctx, conv.ConversationID, a.UserID, &now))

	withMembers, err := store.GetConversationWithMembers(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	member := withMembers.Member(a.UserID)
	require.NotNil(s.T(), member)
	assert.True(s.T(), member.IsTyping(now.Add(time.Second)))
	assert.False(s.T(), member.IsTyping(now.Add(models.TypingTTL)), "typing mark should expire")

	require.NoError(s.T(), store.SetTyping(ctx, conv.ConversationID, a.UserID, nil))
	withMembers, err = store.GetConversationWithMembers(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), withMembers.Member(a.UserID).TypingAt, "typing mark should be cleared")

	assert.ErrorIs(s.T(), store.MarkRead(ctx, conv.ConversationID, b.UserID, now), ErrMemberNotFound)
}

func (s *ConversationsStorageTestSuite) Test_LastMessage() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := s.CreateUser("Alice")
	store := NewConversationsStorage(s.DB)
	conv := s.newConversation(true)
	require.NoError(s.T(), store.CreateConversation(ctx, conv))

	sentAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(s.T(), store.SetLastMessage(ctx, conv.ConversationID, "hello", a.UserID, sentAt))

	err := store.SetLastMessage(ctx, conv.ConversationID, "late", a.UserID, sentAt.Add(-time.Second))
	require.NoError(s.T(), err, "a stale message is not an error")
	stored, err := store.GetConversation(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "hello", *stored.LastMessage, "an older message should not replace the summary")
	assert.WithinDuration(s.T(), sentAt, stored.LastMessageAt, 0)

	require.NoError(s.T(), store.RedactLastMessage(ctx, conv.ConversationID, a.UserID, sentAt.Add(-time.Second), "gone"))
	stored, err = store.GetConversation(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "hello", *stored.LastMessage, "an older message should not redact the summary")
	assert.WithinDuration(s.T(), sentAt, stored.LastMessageAt, 0)

	require.NoError(s.T(), store.RedactLastMessage(ctx, conv.ConversationID, a.UserID, sentAt, "gone"))
	stored, err = store.GetConversation(ctx, conv.ConversationID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "gone", *stored.LastMessage)

	assert.ErrorIs(s.T(), store.SetLastMessage(ctx, uuid.NewString(), "x", a.UserID, sentAt), ErrConversationNotFound)
}
