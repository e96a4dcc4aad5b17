// Package kafka wraps segmentio/kafka-go for the two PromptVault topics:
// analytics events and catalog change notices. Values travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

// MessageHandler processes one message. Returning an error wrapped with
// Poison skips the message at once; other errors are retried a few times
// before the message is skipped.
type MessageHandler func(ctx context.Context, key, value []byte) error

var errPoison = errors.New("poison message")

// Poison marks err as caused by the message itself, so redelivery cannot
// help.
func Poison(err error) error {
	return fmt.Errorf("%w: %w", errPoison, err)
}

// IsPoison reports whether err was marked with Poison.
func IsPoison(err error) bool {
	return errors.Is(err, errPoison)
}

// messageReader is the part of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// ConsumerOption adjusts the reader configuration.
type ConsumerOption func(*kafka.ReaderConfig)

// WithGroupID overrides the configured consumer group. Change notices use
// a group per replica so that every replica sees every notice.
func WithGroupID(groupID string) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.GroupID = groupID }
}

// FromFirstOffset starts a new group at the head of the topic.
func FromFirstOffset() ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return newConsumer(kafka.NewReader(rc), handler,
		slog.Default().With("component", "kafka-consumer", "topic", topic, "group", rc.GroupID))
}

func newConsumer(r messageReader, handler MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger:  logger,
	}
}

// Start consumes until ctx ends, then closes the reader. Every message is
// committed once handled or given up on, so one bad message cannot stall
// the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return ctx.Err()
			}
			c.logger.Error("fetch failed", "error", err)
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}
		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	err := resilience.Retry(ctx, "handle message", c.retry, func() error {
		err := c.handler(ctx, msg.Key, msg.Value)
		if IsPoison(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err == nil {
		return
	}
	c.logger.Warn("message skipped",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"poison", IsPoison(err),
		"error", err,
	)
}

// DecodeJSON unmarshals a message value into T. Decode failures are poison.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, Poison(fmt.Errorf("decoding message: %w", err))
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
