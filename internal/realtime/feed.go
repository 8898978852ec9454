package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrMalformedUpdate = errors.New("malformed update")

type Publisher interface {
	Publish(audience []string, ev Event) int
}

// Feed forwards updates from the updates topic to connected clients.
type Feed struct {
	consumer  sarama.Consumer
	topic     string
	publisher Publisher
	log       logrus.FieldLogger
}

func NewFeed(consumer sarama.Consumer, topic string, publisher Publisher, log logrus.FieldLogger) *Feed {
	return &Feed{
		consumer:  consumer,
		topic:     topic,
		publisher: publisher,
		log:       log.WithFields(logrus.Fields{"component": "feed", "topic": topic}),
	}
}

// Run consumes every partition of the topic from the newest offset until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	partitions, err := f.consumer.Partitions(f.topic)
	if err != nil {
		return fmt.Errorf("can't list partitions: %w", err)
	}

	consumers := make([]sarama.PartitionConsumer, 0, len(partitions))
	for _, p := range partitions {
		pc, err := f.consumer.ConsumePartition(f.topic, p, sarama.OffsetNewest)
		if err != nil {
			for _, started := range consumers {
				_ = started.Close()
			}
			return fmt.Errorf("can't consume partition %d: %w", p, err)
		}
		consumers = append(consumers, pc)
	}

	var wg sync.WaitGroup
	for _, pc := range consumers {
		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			f.consume(ctx, pc)
		}(pc)
	}
	wg.Wait()
	return nil
}

func (f *Feed) consume(ctx context.Context, pc sarama.PartitionConsumer) {
	defer func() {
		if err := pc.Close(); err != nil {
			f.log.WithError(err).Warn("can't close partition consumer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			f.log.WithError(err).Warn("consumer error")
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			f.handle(msg)
		}
	}
}

func (f *Feed) handle(msg *sarama.ConsumerMessage) {
	audience, ev, err := DecodeUpdate(msg.Value)
	if err != nil {
		f.log.WithError(err).WithField("offset", msg.Offset).Warn("skipping update")
		return
	}
	n := f.publisher.Publish(audience, ev)
	f.log.WithFields(logrus.Fields{"kind": ev.Kind, "deliveries": n}).Debug("update forwarded")
}

// DecodeUpdate splits a serialized update envelope into its audience and the
// event clients receive.
func DecodeUpdate(raw []byte) ([]string, Event, error) {
	envelope := &structpb.Struct{}
	if err := proto.Unmarshal(raw, envelope); err != nil {
		return nil, Event{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	fields := envelope.AsMap()
	kind, _ := fields["kind"].(string)
	if kind == "" {
		return nil, Event{}, fmt.Errorf("%w: kind is missing", ErrMalformedUpdate)
	}

	rawAudience, _ := fields["audience"].([]interface{})
	audience := make([]string, 0, len(rawAudience))
	for _, v := range rawAudience {
		if id, ok := v.(string); ok && id != "" {
			audience = append(audience, id)
		}
	}

	delete(fields, "kind")
	delete(fields, "audience")
	return audience, Event{Kind: kind, Data: fields}, nil
}
