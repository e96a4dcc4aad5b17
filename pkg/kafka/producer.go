package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
)

// Event is one message to publish. Key picks the partition; Value is
// encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// Publisher is what the collectors and the catalog publish through.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to one topic. Messages with the same key
// land on the same partition, which keeps per-prompt event order.
type Producer struct {
	writer messageWriter
	source string
	now    func() time.Time
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		source: cfg.ClientID,
		now:    time.Now,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so an unencodable
// event fails the whole batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msg, err := p.encode(ev)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d message(s): %w", len(msgs), err)
	}
	p.logger.Debug("published", "messages", len(msgs))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) encode(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", ev.Key, err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.Key),
		Value:   value,
		Time:    p.now().UTC(),
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}
	if p.source != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "source", Value: []byte(p.source)})
	}
	return msg, nil
}
