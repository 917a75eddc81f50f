package redpanda

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/drfirst/clinical-intel/internal/domain/session"
)

func loginEvent() *session.Event {
	s := session.New()
	s.ID = "sess-1"
	s.UpdatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Role = session.RoleDoctor
	s.Version = 2
	return session.NewEvent(s, session.EventLoggedIn, session.RoleNone).WithUsername("doctor")
}

func header(r *kgo.Record, key string) (string, bool) {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestRecordRoundTrip(t *testing.T) {
	ev := loginEvent()

	record, err := NewRecord(context.Background(), TopicSessionAudit, ev)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if record.Topic != TopicSessionAudit || string(record.Key) != "sess-1" {
		t.Errorf("topic/key = %q/%q", record.Topic, record.Key)
	}
	if v, _ := header(record, HeaderEventType); v != string(session.EventLoggedIn) {
		t.Errorf("event_type header = %q", v)
	}
	if _, ok := header(record, HeaderTraceParent); ok {
		t.Error("traceparent set without an active span")
	}

	got, err := DecodeRecord(record)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.ID != ev.ID || got.To != session.RoleDoctor || got.Username != "doctor" || got.Version != 2 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestRecordCarriesTraceParent(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	record, err := NewRecord(ctx, TopicSessionAudit, loginEvent())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	v, ok := header(record, HeaderTraceParent)
	if !ok {
		t.Fatal("traceparent header missing")
	}
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if v != want {
		t.Errorf("traceparent = %q, want %q", v, want)
	}
}

func TestExtractTraceContextFromRecord(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	record, err := NewRecord(trace.ContextWithSpanContext(context.Background(), sc), TopicSessionAudit, loginEvent())
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), record))
	if got.TraceID() != sc.TraceID() || got.SpanID() != sc.SpanID() || !got.IsSampled() || !got.IsRemote() {
		t.Errorf("extracted span context = %+v", got)
	}
	if v, _ := header(record, HeaderEventType); v != string(session.EventLoggedIn) {
		t.Errorf("event_type header clobbered: %q", v)
	}
}

func TestPublishDoesNotBlockWhenBrokerIsDown(t *testing.T) {
	p, err := NewProducer(ProducerConfig{
		Brokers:            []string{"127.0.0.1:1"},
		MaxBufferedRecords: 10,
		DeliveryTimeout:    time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	t.Cleanup(p.client.Close)

	const publishes = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < publishes; i++ {
			p.Publish(context.Background(), loginEvent())
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().ErrorCount < publishes-10 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if stats := p.Stats(); stats.ErrorCount < publishes-10 {
		t.Errorf("ErrorCount = %d, want at least %d dropped records counted", stats.ErrorCount, publishes-10)
	}
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":   "{",
		"no id":      `{"event_type":"LoggedIn"}`,
		"no type":    `{"id":"e-1"}`,
		"wrong type": `[1,2]`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeRecord(&kgo.Record{Value: []byte(value)}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConstructorsValidate(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}, nil); err == nil {
		t.Error("producer without brokers should be rejected")
	}
	if _, err := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}}, nil, nil); err == nil ||
		!strings.Contains(err.Error(), "handler") {
		t.Errorf("consumer without handler: err = %v", err)
	}
}

func TestAuditTopicConfig(t *testing.T) {
	cfg := AuditTopicConfig("")
	if cfg.Name != TopicSessionAudit || cfg.Partitions != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := *cfg.Configs["cleanup.policy"]; got != "delete" {
		t.Errorf("cleanup.policy = %q", got)
	}
	if AuditTopicConfig("custom.audit").Name != "custom.audit" {
		t.Error("explicit name ignored")
	}
}
