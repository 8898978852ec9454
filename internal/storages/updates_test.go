package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	testConversationId = "256e3354-8263-4913-8bdd-345bd04d962e"
	testMessageId      = "67f85047-09d0-42a2-a5ee-9ce8db28cb07"
	testUserId         = "253becbb-76b1-4471-9ff3-529462925899"
	testOtherUserId    = "1230cadb-899e-4710-8cdd-0a2f83882712"
)

func TestUpdatesStorage_Envelope(t *testing.T) {
	store := NewUpdatesStore(nil, nil)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reaction := &models.MessageChanged{
		UpdateMeta: models.UpdateMeta{
			Timestamp: at,
			Audience:  []string{testUserId, testOtherUserId},
		},
		Kind:           models.UpdateReactionToggled,
		MessageID:      testMessageId,
		ConversationID: testConversationId,
		UserID:         testUserId,
		Emoji:          "👍",
	}

	update, err := store.messageChangedToProtobuf(reaction)
	require.NoError(t, err)

	fields := update.AsMap()
	assert.Equal(t, string(models.UpdateReactionToggled), fields["kind"])
	assert.Equal(t, float64(at.UnixMilli()), fields["timestamp"])
	assert.Equal(t, []interface{}{testUserId, testOtherUserId}, fields["audience"])
	assert.Equal(t, testMessageId, fields["message_id"])
	assert.Equal(t, "👍", fields["emoji"])
}

func TestUpdatesStorage_OptionalFieldsOmitted(t *testing.T) {
	store := NewUpdatesStore(nil, nil)

	update, err := store.messageSentToProtobuf(&models.MessageSent{
		UpdateMeta:     models.UpdateMeta{Timestamp: time.Now()},
		MessageID:      testMessageId,
		FromUser:       testUserId,
		ConversationID: testConversationId,
		Text:           "hi",
	})
	require.NoError(t, err)
	_, ok := update.AsMap()["reply_to"]
	assert.False(t, ok, "absent reply should not be encoded")

	update, err = store.inviteChangedToProtobuf(&models.InviteChanged{
		UpdateMeta: models.UpdateMeta{Timestamp: time.Now()},
		Kind:       models.UpdateChatInviteCreated,
		InviteID:   testMessageId,
		FromUser:   testUserId,
		ToUser:     testOtherUserId,
		Status:     models.InviteStatusPending,
	})
	require.NoError(t, err)
	_, ok = update.AsMap()["conversation_id"]
	assert.False(t, ok, "chat invites have no conversation before acceptance")
}

func TestUpdatesStorage_DisabledIsNoop(t *testing.T) {
	store := NewUpdatesStore(nil, &UpdatesStoreConfig{UpdatesTopic: "updates"})
	assert.False(t, store.Enabled())

	err := store.ConversationChanged(&models.ConversationChanged{
		UpdateMeta:     models.UpdateMeta{Audience: []string{testUserId}},
		Kind:           models.UpdateConversationRead,
		ConversationID: testConversationId,
		UserID:         testUserId,
	})
	assert.NoError(t, err, "updates should be dropped silently without a producer")
}

func TestUpdatesStorage_RejectsMalformed(t *testing.T) {
	store := NewUpdatesStore(nil, nil)
	audience := models.UpdateMeta{Audience: []string{testUserId}}

	cases := []struct {
		name string
		send func() error
	}{
		{"blank text", func() error {
			return store.MessageSent(&models.MessageSent{
				UpdateMeta:     audience,
				MessageID:      testMessageId,
				FromUser:       testUserId,
				ConversationID: testConversationId,
			})
		}},
		{"no audience", func() error {
			return store.MessageChanged(&models.MessageChanged{
				Kind:           models.UpdateMessageDeleted,
				MessageID:      testMessageId,
				ConversationID: testConversationId,
				UserID:         testUserId,
			})
		}},
		{"audience is not a user id", func() error {
			return store.ConversationChanged(&models.ConversationChanged{
				UpdateMeta:     models.UpdateMeta{Audience: []string{"alice"}},
				Kind:           models.UpdateConversationHidden,
				ConversationID: testConversationId,
				UserID:         testUserId,
			})
		}},
		{"missing kind", func() error {
			return store.InviteChanged(&models.InviteChanged{
				UpdateMeta: audience,
				InviteID:   testMessageId,
				FromUser:   testUserId,
				ToUser:     testOtherUserId,
				Status:     models.InviteStatusPending,
			})
		}},
		{"bad conversation id", func() error {
			return store.InviteChanged(&models.InviteChanged{
				UpdateMeta:     audience,
				Kind:           models.UpdateGroupInviteCreated,
				InviteID:       testMessageId,
				ConversationID: "group",
				FromUser:       testUserId,
				ToUser:         testOtherUserId,
				Status:         models.InviteStatusPending,
			})
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.send(), ErrInvalidUpdate)
		})
	}
}

func TestUpdatesStorage_OutboxHoldsUntilFlush(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	store := NewUpdatesStore(producer, &UpdatesStoreConfig{UpdatesTopic: "updates"})
	store.outbox = &outbox{}

	err := store.MessageSent(&models.MessageSent{
		UpdateMeta: models.UpdateMeta{
			Timestamp: time.Now(),
			Audience:  []string{testUserId, testOtherUserId},
		},
		MessageID:      testMessageId,
		FromUser:       testUserId,
		ConversationID: testConversationId,
		Text:           "hi",
	})
	require.NoError(t, err)
	require.Len(t, store.outbox.messages, 1, "update should wait in the outbox")

	producer.ExpectSendMessageAndSucceed()
	require.NoError(t, store.flush())
	assert.Empty(t, store.outbox.messages, "outbox should be emptied by flush")
	assert.NoError(t, store.flush(), "flushing an empty outbox sends nothing")

	require.NoError(t, producer.Close())
}

type EventsTestSuite struct {
	suite.Suite
	p sarama.SyncProducer
	c sarama.Consumer
}

func (s *EventsTestSuite) TearDownSuite() {
	if s.p != nil {
		err := s.p.Close()
		require.NoError(s.T(), err, "Sarama producer should be closed correctly")
	}
	if s.c != nil {
		_ = s.c.Close()
	}
}

func (s *EventsTestSuite) SetupSuite() {
	viper.AutomaticEnv()
	brokers := viper.GetString("KAFKA_BROKERS")

	if len(brokers) == 0 {
		s.T().Skip("KAFKA_BROKERS is not set")
	}

	addrs := strings.Split(brokers, ",")
	config := sarama.NewConfig()
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Timeout = 10 * time.Second
	config.Producer.Return.Successes = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Offsets.AutoCommit.Enable = false

	var err error
	s.p, err = sarama.NewSyncProducer(addrs, config)
	require.NoError(s.T(), err, fmt.Sprintf("can't create kafka producer: %v", err))

	s.c, err = sarama.NewConsumer(addrs, config)
	require.NoError(s.T(), err, fmt.Sprintf("can't create kafka consumer: %v", err))
}

func TestEventsSuite(t *testing.T) {
	suite.Run(t, &EventsTestSuite{})
}

func (s *EventsTestSuite) Test_EventsStorage_MessageSent() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := s.c.ConsumePartition("test", 0, sarama.OffsetNewest)
	require.NoError(s.T(), err, "create consume partition")
	defer consumer.Close()

	update := models.MessageSent{
		UpdateMeta: models.UpdateMeta{
			Timestamp: time.Now().UTC(),
			Audience:  []string{testUserId, testOtherUserId},
		},
		MessageID:      testMessageId,
		FromUser:       testUserId,
		ConversationID: testConversationId,
		Text:           "Hello, world!",
	}
	store := NewUpdatesStore(s.p, &UpdatesStoreConfig{UpdatesTopic: "test"})
	err = store.MessageSent(&update)
	assert.NoError(s.T(), err, "event should be pushed without error")

	select {
	case msg := <-consumer.Messages():
		expected, err := store.messageSentToProtobuf(&update)
		require.NoError(s.T(), err)

		actual := &structpb.Struct{}
		require.NoError(s.T(), proto.Unmarshal(msg.Value, actual))

		assert.Equal(s.T(), update.ConversationID, string(msg.Key))
		assert.True(s.T(), proto.Equal(expected, actual), "payload should round trip")
	case <-ctx.Done():
		assert.FailNow(s.T(), "Timeout")
	}
}

func (s *EventsTestSuite) Test_EventsStorage_InviteKeyedByInvite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := s.c.ConsumePartition("test", 0, sarama.OffsetNewest)
	require.NoError(s.T(), err, "create consume partition")
	defer consumer.Close()

	store := NewUpdatesStore(s.p, &UpdatesStoreConfig{UpdatesTopic: "test"})
	err = store.InviteChanged(&models.InviteChanged{
		UpdateMeta: models.UpdateMeta{
			Timestamp: time.Now().UTC(),
			Audience:  []string{testUserId, testOtherUserId},
		},
		Kind:     models.UpdateChatInviteCreated,
		InviteID: testMessageId,
		FromUser: testUserId,
		ToUser:   testOtherUserId,
		Status:   models.InviteStatusPending,
	})
	assert.NoError(s.T(), err, "event should be pushed without error")

	select {
	case msg := <-consumer.Messages():
		assert.Equal(s.T(), testMessageId, string(msg.Key))
	case <-ctx.Done():
		assert.FailNow(s.T(), "Timeout")
	}
}
