package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/practice-sem-2/messaging-service/internal/models"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidUpdate = errors.New("update event is malformed")

var updateValidator = validator.New()

type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
	outbox   *outbox
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

// outbox holds the updates of a transaction until it commits.
type outbox struct {
	messages []*sarama.ProducerMessage
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

// Enabled reports whether updates are actually delivered anywhere.
func (s *UpdatesStorage) Enabled() bool {
	return s.producer != nil && s.cfg != nil && s.cfg.UpdatesTopic != ""
}

func (s *UpdatesStorage) putUpdate(key string, event *structpb.Struct) error {
	if !s.Enabled() {
		return nil
	}

	bytes, err := proto.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.cfg.UpdatesTopic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(bytes),
		Timestamp: time.Time{},
	}
	if s.outbox != nil {
		s.outbox.messages = append(s.outbox.messages, msg)
		return nil
	}

	_, _, err = s.producer.SendMessage(msg)
	return err
}

// flush sends the updates collected by the transaction and empties the outbox.
func (s *UpdatesStorage) flush() error {
	if s.outbox == nil || len(s.outbox.messages) == 0 {
		return nil
	}
	messages := s.outbox.messages
	s.outbox.messages = nil
	return s.producer.SendMessages(messages)
}

func validateUpdate(update interface{}) error {
	if err := updateValidator.Struct(update); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}
	return nil
}

func newEnvelope(kind models.UpdateKind, meta models.UpdateMeta, fields map[string]interface{}) (*structpb.Struct, error) {
	audience := make([]interface{}, len(meta.Audience))
	for i, id := range meta.Audience {
		audience[i] = id
	}
	body := map[string]interface{}{
		"kind":      string(kind),
		"timestamp": meta.Timestamp.UTC().UnixMilli(),
		"audience":  audience,
	}
	for k, v := range fields {
		body[k] = v
	}
	return structpb.NewStruct(body)
}

func (s *UpdatesStorage) messageSentToProtobuf(msg *models.MessageSent) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"message_id":      msg.MessageID,
		"conversation_id": msg.ConversationID,
		"from_user":       msg.FromUser,
		"text":            msg.Text,
	}
	if msg.ReplyTo != nil {
		fields["reply_to"] = *msg.ReplyTo
	}
	return newEnvelope(models.UpdateMessageSent, msg.UpdateMeta, fields)
}

func (s *UpdatesStorage) messageChangedToProtobuf(msg *models.MessageChanged) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"message_id":      msg.MessageID,
		"conversation_id": msg.ConversationID,
		"user_id":         msg.UserID,
	}
	if msg.Emoji != "" {
		fields["emoji"] = msg.Emoji
	}
	return newEnvelope(msg.Kind, msg.UpdateMeta, fields)
}

func (s *UpdatesStorage) conversationChangedToProtobuf(conv *models.ConversationChanged) (*structpb.Struct, error) {
	return newEnvelope(conv.Kind, conv.UpdateMeta, map[string]interface{}{
		"conversation_id": conv.ConversationID,
		"user_id":         conv.UserID,
		"is_group":        conv.IsGroup,
	})
}

func (s *UpdatesStorage) inviteChangedToProtobuf(inv *models.InviteChanged) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"invite_id": inv.InviteID,
		"from_user": inv.FromUser,
		"to_user":   inv.ToUser,
		"status":    string(inv.Status),
	}
	if inv.ConversationID != "" {
		fields["conversation_id"] = inv.ConversationID
	}
	return newEnvelope(inv.Kind, inv.UpdateMeta, fields)
}

func (s *UpdatesStorage) MessageSent(msg *models.MessageSent) error {
	if err := validateUpdate(msg); err != nil {
		return err
	}
	update, err := s.messageSentToProtobuf(msg)
	if err != nil {
		return err
	}
	return s.putUpdate(msg.ConversationID, update)
}

func (s *UpdatesStorage) MessageChanged(msg *models.MessageChanged) error {
	if err := validateUpdate(msg); err != nil {
		return err
	}
	update, err := s.messageChangedToProtobuf(msg)
	if err != nil {
		return err
	}
	return s.putUpdate(msg.ConversationID, update)
}

func (s *UpdatesStorage) ConversationChanged(conv *models.ConversationChanged) error {
	if err := validateUpdate(conv); err != nil {
		return err
	}
	update, err := s.conversationChangedToProtobuf(conv)
	if err != nil {
		return err
	}
	return s.putUpdate(conv.ConversationID, update)
}

func (s *UpdatesStorage) InviteChanged(inv *models.InviteChanged) error {
	if err := validateUpdate(inv); err != nil {
		return err
	}
	update, err := s.inviteChangedToProtobuf(inv)
	if err != nil {
		return err
	}
	key := inv.ConversationID
	if key == "" {
		key = inv.InviteID
	}
	return s.putUpdate(key, update)
}
