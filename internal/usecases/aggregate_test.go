package usecases

import (
	"testing"
	"time"

	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceId = "74cccd17-9c56-490b-b721-88c027976863"
	bobId   = "67f85047-09d0-42a2-a5ee-9ce8db28cb07"
	carolId = "253becbb-76b1-4471-9ff3-529462925899"
)

func TestAggregateReactions(t *testing.T) {
	reactions := []models.Reaction{
		{MessageID: "m", UserID: aliceId, Emoji: "🎉"},
		{MessageID: "m", UserID: bobId, Emoji: "👍"},
		{MessageID: "m", UserID: carolId, Emoji: "👍"},
	}

	counts, own := AggregateReactions(reactions, aliceId)
	assert.Equal(t, []models.ReactionCount{{Emoji: "👍", Count: 2}, {Emoji: "🎉", Count: 1}}, counts)
	require.NotNil(t, own)
	assert.Equal(t, "🎉", *own)

	counts, own = AggregateReactions(nil, aliceId)
	assert.Empty(t, counts)
	assert.Nil(t, own)
}

func TestAnyoneElseTyping(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Second)
	stale := now.Add(-models.TypingTTL)

	members := []models.ConversationMember{
		{UserID: aliceId, TypingAt: &fresh},
		{UserID: bobId, TypingAt: &stale},
	}
	assert.False(t, AnyoneElseTyping(members, aliceId, now), "own typing and stale marks are ignored")
	assert.True(t, AnyoneElseTyping(members, bobId, now))
}

func TestBuildMessageViews(t *testing.T) {
	name := "Alice"
	messages := []models.Message{
		{MessageID: "m1", SenderID: aliceId, Body: "hi"},
		{MessageID: "m2", SenderID: bobId, Body: "secret", Deleted: true},
	}
	reactions := []models.Reaction{{MessageID: "m1", UserID: bobId, Emoji: "👍"}}
	senders := map[string]models.User{aliceId: {UserID: aliceId, Name: &name}}

	views := BuildMessageViews(messages, reactions, senders, bobId)
	require.Len(t, views, 2)

	assert.Equal(t, "hi", views[0].Body)
	assert.Equal(t, "Alice", views[0].Sender.Name)
	assert.Equal(t, []models.ReactionCount{{Emoji: "👍", Count: 1}}, views[0].Reactions)
	require.NotNil(t, views[0].UserReaction)
	assert.Equal(t, "👍", *views[0].UserReaction)

	assert.Equal(t, models.DeletedMessagePlaceholder, views[1].Body, "deleted bodies are redacted")
	assert.Equal(t, "User", views[1].Sender.Name, "unknown senders get a fallback name")
	assert.Empty(t, views[1].Reactions)
}

func TestBuildConversationView(t *testing.T) {
	now := time.Now()
	bobName := "Bob"
	users := map[string]models.User{
		bobId: {UserID: bobId, Name: &bobName, LastSeenAt: now.Add(-10 * time.Second)},
	}
	members := []models.ConversationMember{{UserID: aliceId}, {UserID: bobId}}

	direct := BuildConversationView(models.Conversation{ConversationID: "c1"}, members, aliceId, 3, users, now)
	assert.Equal(t, "Bob", direct.Name, "direct conversations show the counterpart")
	require.NotNil(t, direct.OtherUserID)
	assert.Equal(t, bobId, *direct.OtherUserID)
	assert.True(t, direct.IsOnline)
	assert.Equal(t, 3, direct.UnreadCount)
	assert.Equal(t, []string{aliceId, bobId}, direct.Participants)

	group := BuildConversationView(models.Conversation{ConversationID: "c2", IsGroup: true}, members, aliceId, 0, users, now)
	assert.Equal(t, "Group", group.Name, "unnamed groups get a fallback name")
	assert.Nil(t, group.OtherUserID)
	assert.False(t, group.IsOnline)

	users[bobId] = models.User{UserID: bobId, Name: &bobName, LastSeenAt: now.Add(-models.OnlineWindow)}
	direct = BuildConversationView(models.Conversation{ConversationID: "c1"}, members, aliceId, 0, users, now)
	assert.False(t, direct.IsOnline, "presence expires after the online window")
}
