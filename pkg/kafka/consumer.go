// Package kafka provides producer and consumer clients backed by
// segmentio/kafka-go. Producers serialise events as JSON; consumers hand
// raw messages to a MessageHandler, retry it with backoff, and commit only
// what it accepted.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// Message is the part of a kafka record handlers see.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// MessageHandler is invoked for each message. A returned error is retried;
// wrap it with resilience.Permanent to give up on the first attempt.
type MessageHandler func(ctx context.Context, msg Message) error

type Consumer struct {
	reader  *kafka.Reader
	retry   resilience.RetryConfig
	topic   string
	logger  *slog.Logger
	handler MessageHandler
}

type consumerOptions struct {
	reader kafka.ReaderConfig
	retry  resilience.RetryConfig
}

// ConsumerOption adjusts the reader configuration or the retry policy.
type ConsumerOption func(*consumerOptions)

// FromBeginning makes a new consumer group start at the oldest offset.
func FromBeginning() ConsumerOption {
	return func(o *consumerOptions) { o.reader.StartOffset = kafka.FirstOffset }
}

// WithGroup overrides the configured consumer group.
func WithGroup(group string) ConsumerOption {
	return func(o *consumerOptions) { o.reader.GroupID = group }
}

// WithRetry sets how a failing handler is retried before Start gives up.
func WithRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		reader: kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		},
		retry: resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Consumer{
		reader:  kafka.NewReader(o.reader),
		retry:   o.retry,
		topic:   topic,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.reader.GroupID),
		handler: handler,
	}
}

// Start fetches and dispatches messages until ctx is cancelled. A message
// the handler still rejects after retrying stops the consumer with an error
// and stays uncommitted, so it is redelivered when consumption resumes.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		m := Message{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset}
		err = resilience.Retry(ctx, "handle "+c.topic, c.retry, func() error { return c.handler(ctx, m) })
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("giving up on message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return fmt.Errorf("handling %s partition %d offset %d: %w", c.topic, msg.Partition, msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
