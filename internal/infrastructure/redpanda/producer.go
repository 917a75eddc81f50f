// Package redpanda publishes session transitions to a Kafka-compatible audit
// topic with franz-go and reads them back for operators.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/domain/session"
)

// Header keys set on every audit record
const (
	HeaderEventType   = "event_type"
	HeaderTraceParent = "traceparent"
)

// ProducerConfig holds configuration for the audit producer
type ProducerConfig struct {
	Brokers []string
	Topic   string
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// Compression is one of lz4, snappy, gzip, zstd or empty for none
	Compression string
	MaxRetries  int
	// MaxBufferedRecords caps records waiting for the broker; events beyond
	// it are dropped and counted as errors
	MaxBufferedRecords int
	// DeliveryTimeout fails records the broker has not acknowledged in time
	DeliveryTimeout time.Duration
}

// DefaultProducerConfig returns defaults for a low-volume audit stream
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       TopicSessionAudit,
		LingerMS:    20,
		Compression: "lz4",
		MaxRetries:  3,

		MaxBufferedRecords: 10_000,
		DeliveryTimeout:    30 * time.Second,
	}
}

// Producer publishes session events. Publishing never blocks a request:
// records are buffered up to a limit, anything past it is dropped, and
// failures are logged and counted.
type Producer struct {
	client *kgo.Client
	config ProducerConfig
	logger *zap.Logger
	tracer trace.Tracer

	mu           sync.RWMutex
	messagesSent int64
	bytesSent    int64
	errorCount   int64
	lastError    string
}

// NewProducer creates an audit producer. The client connects lazily, so an
// unreachable broker surfaces as publish errors rather than here.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicSessionAudit
	}
	defaults := DefaultProducerConfig()
	if cfg.MaxBufferedRecords <= 0 {
		cfg.MaxBufferedRecords = defaults.MaxBufferedRecords
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaults.DeliveryTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.ProduceRequestTimeout(cfg.DeliveryTimeout),
	}
	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// Publish queues ev on the audit topic, keyed by session so one session's
// transitions stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, ev *session.Event) {
	if ev == nil {
		return
	}
	// the record outlives the request that produced it
	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "publish_session_event",
		trace.WithAttributes(
			attribute.String("topic", p.config.Topic),
			attribute.String("event_type", string(ev.EventType)),
		))

	record, err := NewRecord(ctx, p.config.Topic, ev)
	if err != nil {
		span.RecordError(err)
		span.End()
		p.recordError(err)
		p.logger.Error("failed to encode session event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	// TryProduce fails with kgo.ErrMaxBuffered instead of waiting for room
	p.client.TryProduce(ctx, record, func(r *kgo.Record, err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			p.recordError(err)
			p.logger.Error("failed to publish session event",
				zap.String("topic", p.config.Topic),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			return
		}
		p.mu.Lock()
		p.messagesSent++
		p.bytesSent += int64(len(r.Value))
		p.mu.Unlock()
		p.logger.Debug("session event published",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
	return nil
}

// ProducerStats holds producer statistics
type ProducerStats struct {
	Topic        string `json:"topic"`
	MessagesSent int64  `json:"messages_sent"`
	BytesSent    int64  `json:"bytes_sent"`
	ErrorCount   int64  `json:"error_count"`
	LastError    string `json:"last_error,omitempty"`
}

// Stats returns current producer statistics
func (p *Producer) Stats() ProducerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProducerStats{
		Topic:        p.config.Topic,
		MessagesSent: p.messagesSent,
		BytesSent:    p.bytesSent,
		ErrorCount:   p.errorCount,
		LastError:    p.lastError,
	}
}

func (p *Producer) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCount++
	p.lastError = err.Error()
}

// NewRecord encodes ev as a record for topic
func NewRecord(ctx context.Context, topic string, ev *session.Event) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal session event: %w", err)
	}
	record := &kgo.Record{
		Topic:     topic,
		Key:       []byte(ev.SessionID),
		Value:     value,
		Timestamp: ev.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(ev.EventType)},
		},
	}
	injectTraceHeaders(ctx, record)
	return record, nil
}

// traceContext writes the W3C traceparent and tracestate headers
var traceContext = propagation.TraceContext{}

// injectTraceHeaders adds W3C trace context to record headers
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	traceContext.Inject(ctx, headerCarrier{record})
}

// ExtractTraceContext returns ctx carrying the remote span recorded in the
// record headers, if any.
func ExtractTraceContext(ctx context.Context, record *kgo.Record) context.Context {
	return traceContext.Extract(ctx, headerCarrier{record})
}

// headerCarrier adapts record headers to propagation.TextMapCarrier
type headerCarrier struct {
	record *kgo.Record
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.record.Headers {
		if h.Key == key {
			c.record.Headers[i].Value = []byte(value)
			return
		}
	}
	c.record.Headers = append(c.record.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.record.Headers))
	for _, h := range c.record.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
