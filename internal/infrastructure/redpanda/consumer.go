package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/domain/session"
)

// ConsumerConfig holds configuration for reading the audit topic
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// FromStart replays retained events before following new ones
	FromStart bool
}

// EventHandler is called for each decoded event. Returning an error stops
// the consumer.
type EventHandler func(ctx context.Context, ev *session.Event) error

// Consumer follows the audit topic without joining a consumer group, so
// operators tailing it never steal partitions from each other.
type Consumer struct {
	client  *kgo.Client
	handler EventHandler
	logger  *zap.Logger
}

// NewConsumer creates an audit consumer
func NewConsumer(cfg ConsumerConfig, handler EventHandler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicSessionAudit
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.FromStart {
		offset = kgo.NewOffset().AtStart()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is done or the handler fails. Undecodable records are
// logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			c.logger.Error("fetch error",
				zap.String("topic", fe.Topic),
				zap.Int32("partition", fe.Partition),
				zap.Error(fe.Err))
		}

		var handlerErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handlerErr != nil {
				return
			}
			ev, err := DecodeRecord(record)
			if err != nil {
				c.logger.Warn("skipping undecodable record",
					zap.Int32("partition", record.Partition),
					zap.Int64("offset", record.Offset),
					zap.Error(err))
				return
			}
			handlerErr = c.handler(ExtractTraceContext(ctx, record), ev)
		})
		if handlerErr != nil {
			return handlerErr
		}
	}
}

// DecodeRecord turns an audit record back into the event it carries
func DecodeRecord(record *kgo.Record) (*session.Event, error) {
	var ev session.Event
	if err := json.Unmarshal(record.Value, &ev); err != nil {
		return nil, fmt.Errorf("decode session event: %w", err)
	}
	if ev.ID == "" || ev.EventType == "" {
		return nil, errors.New("decode session event: missing id or event type")
	}
	return &ev, nil
}
