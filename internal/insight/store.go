package insight

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PatientPlaceholder is shown for per-patient insights that are not present.
const PatientPlaceholder = "Patient insight not available"

// Recorder receives lookup outcomes, typically for metrics.
type Recorder interface {
	InsightLookup(section string, hit bool)
	InsightLoadFailed()
}

type nopRecorder struct{}

func (nopRecorder) InsightLookup(string, bool) {}
func (nopRecorder) InsightLoadFailed()         {}

// Option configures a Store.
type Option func(*Store)

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithSchema replaces the schema applied on every load.
func WithSchema(schema Schema) Option {
	return func(s *Store) { s.schema = schema }
}

// Store reads the insight file. There is no cache: every call re-reads the
// file so lookups always reflect what is on disk.
type Store struct {
	path     string
	schema   Schema
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	readFile func(string) ([]byte, error)
}

// NewStore creates a store over the JSON file at path.
func NewStore(path string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:     path,
		schema:   DefaultSchema(),
		logger:   logger,
		recorder: nopRecorder{},
		tracer:   otel.Tracer("insight-store"),
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Schema returns the schema validated on every load.
func (s *Store) Schema() Schema { return s.schema }

// Check reads, parses and validates the file, reporting any failure.
func (s *Store) Check(ctx context.Context) (*Document, []Issue, error) {
	_, span := s.tracer.Start(ctx, "insight.load",
		trace.WithAttributes(attribute.String("path", s.path)))
	defer span.End()

	data, err := s.readFile(s.path)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("read insights %s: %w", s.path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	issues := doc.Validate(s.schema)
	span.SetAttributes(attribute.Int("issues", len(issues)))
	return doc, issues, nil
}

// Load returns the current document. A missing or corrupt file is logged and
// yields an empty document; callers never see the failure.
func (s *Store) Load(ctx context.Context) *Document {
	doc, issues, err := s.Check(ctx)
	if err != nil {
		s.recorder.InsightLoadFailed()
		s.logger.Error("error loading insights", zap.String("path", s.path), zap.Error(err))
		return Empty()
	}
	for _, issue := range issues {
		s.logger.Warn("insight has unexpected shape",
			zap.String("section", issue.Section),
			zap.String("key", issue.Key),
			zap.Stringer("expected", issue.Expected),
			zap.Stringer("got", issue.Got))
	}
	return doc
}

// Get returns section.key from the current file, or Absent.
func (s *Store) Get(ctx context.Context, section, key string) Value {
	v := s.Load(ctx).Lookup(section, key)
	s.recorder.InsightLookup(section, !v.IsAbsent())
	return v
}

// Lookup is Get converted to plain Go values. Missing entries come back as
// the Placeholder string.
func (s *Store) Lookup(ctx context.Context, section, key string) any {
	return s.Get(ctx, section, key).Interface()
}

// HeroPatients returns doctor.hero_patients.
func (s *Store) HeroPatients(ctx context.Context) Value {
	return s.Get(ctx, SectionDoctor, "hero_patients")
}

// PatientInsight returns doctor.hero_patients.<patientID>.<key>, or Absent.
// Render absent results with PatientPlaceholder.
func (s *Store) PatientInsight(ctx context.Context, patientID, key string) Value {
	v := s.Load(ctx).Lookup(SectionDoctor, "hero_patients").Path(patientID, key)
	s.recorder.InsightLookup(SectionDoctor, !v.IsAbsent())
	return v
}
