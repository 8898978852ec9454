package usecases

import (
	"sort"
	"time"

	"github.com/practice-sem-2/messaging-service/internal/models"
)

// AnyoneElseTyping reports whether a participant other than the viewer has a fresh typing timestamp.
func AnyoneElseTyping(members []models.ConversationMember, viewerId string, now time.Time) bool {
	for i := range members {
		if members[i].UserID != viewerId && members[i].IsTyping(now) {
			return true
		}
	}
	return false
}

// AggregateReactions folds per-user reactions of one message into emoji counts,
// most used first, and picks out the viewer's own emoji.
func AggregateReactions(reactions []models.Reaction, viewerId string) ([]models.ReactionCount, *string) {
	counts := make(map[string]int)
	var own *string
	for _, r := range reactions {
		counts[r.Emoji]++
		if r.UserID == viewerId {
			emoji := r.Emoji
			own = &emoji
		}
	}

	result := make([]models.ReactionCount, 0, len(counts))
	for emoji, count := range counts {
		result = append(result, models.ReactionCount{Emoji: emoji, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Emoji < result[j].Emoji
	})
	return result, own
}

func BuildMessageViews(messages []models.Message, reactions []models.Reaction, senders map[string]models.User, viewerId string) []models.MessageView {
	byMessage := make(map[string][]models.Reaction)
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}

	views := make([]models.MessageView, len(messages))
	for i, msg := range messages {
		var sender *models.User
		if u, ok := senders[msg.SenderID]; ok {
			sender = &u
		}
		counts, own := AggregateReactions(byMessage[msg.MessageID], viewerId)
		views[i] = models.MessageView{
			MessageID:      msg.MessageID,
			ConversationID: msg.ConversationID,
			Body:           msg.VisibleBody(),
			CreatedAt:      msg.CreatedAt,
			Deleted:        msg.Deleted,
			Sender:         models.NewUserSummary(msg.SenderID, sender),
			Reactions:      counts,
			UserReaction:   own,
			ReplyTo:        msg.ReplyTo,
			ReplyToUser:    msg.ReplyToUser,
		}
	}
	return views
}

// BuildConversationView resolves what the viewer sees for one conversation:
// the counterpart's profile and presence for direct chats, the stored name for groups.
func BuildConversationView(
	conv models.Conversation,
	members []models.ConversationMember,
	viewerId string,
	unread int,
	users map[string]models.User,
	now time.Time,
) models.ConversationView {
	participants := make([]string, len(members))
	for i, m := range members {
		participants[i] = m.UserID
	}

	view := models.ConversationView{
		ConversationID:      conv.ConversationID,
		IsGroup:             conv.IsGroup,
		Participants:        participants,
		LastMessage:         conv.LastMessage,
		LastMessageAt:       conv.LastMessageAt,
		LastMessageSenderID: conv.LastMessageSenderID,
		UnreadCount:         unread,
		IsTyping:            AnyoneElseTyping(members, viewerId, now),
	}

	if conv.IsGroup {
		view.Name = models.GroupDisplayName(conv.Name)
		return view
	}

	cwm := models.ConversationWithMembers{Conversation: conv, Members: members}
	otherId := cwm.Counterpart(viewerId)
	if otherId == "" {
		view.Name = models.NewUserSummary("", nil).Name
		return view
	}

	view.OtherUserID = &otherId
	other, ok := users[otherId]
	if !ok {
		view.Name = models.NewUserSummary(otherId, nil).Name
		return view
	}
	lastSeen := other.LastSeenAt
	view.Name = other.DisplayName()
	view.Email = other.Email
	view.ImageURL = other.ImageURL
	view.LastSeenAt = &lastSeen
	view.IsOnline = other.IsOnline(now)
	return view
}
