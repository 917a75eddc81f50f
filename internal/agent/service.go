package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/pkg/circuitbreaker"
)

// FallbackResponse is shown when derivation fails
const FallbackResponse = "Unable to derive insight at this time."

// ErrCircuitOpen is returned while the backend breaker rejects calls
var ErrCircuitOpen = circuitbreaker.ErrOpen

// InferenceError reports a derivation that failed after all attempts
type InferenceError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("derive insight after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Config holds the call policy applied to every backend
type Config struct {
	// Timeout bounds a single attempt
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first
	MaxRetries int
	// RetryDelay grows linearly with the attempt number
	RetryDelay time.Duration
}

// DefaultConfig returns the default call policy
func DefaultConfig() Config {
	return Config{
		Timeout:    20 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Recorder receives derivation outcomes
type Recorder interface {
	Derivation(backend string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Derivation(string, bool) {}

// Service applies timeout, retry and circuit breaking around a Deriver
type Service struct {
	backend  Deriver
	name     string
	config   Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
	recorder Recorder
}

// NewService wraps backend. name labels logs, metrics and the breaker.
func NewService(backend Deriver, name string, cfg Config, logger *zap.Logger, recorder Recorder) (*Service, error) {
	if backend == nil {
		return nil, errors.New("deriver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("agent-"+name), logger)
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	return &Service{
		backend:  backend,
		name:     name,
		config:   cfg,
		breaker:  breaker,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Backend returns the backend name
func (s *Service) Backend() string { return s.name }

// Health returns the breaker status
func (s *Service) Health() circuitbreaker.HealthStatus { return s.breaker.Health() }

// Derive returns the backend's answer or an *InferenceError.
func (s *Service) Derive(ctx context.Context, query string) (string, error) {
	var lastErr error
	attempts := 0

retry:
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		attempts++
		out, err := s.breaker.Execute(ctx, func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
			defer cancel()
			return s.backend.Derive(callCtx, query)
		})
		if err == nil {
			s.recorder.Derivation(s.name, true)
			return out, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			break retry
		}
		if attempt < s.config.MaxRetries {
			s.logger.Debug("retrying derivation",
				zap.String("backend", s.name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(s.config.RetryDelay * time.Duration(attempt+1)):
			}
		}
	}

	s.recorder.Derivation(s.name, false)
	return "", &InferenceError{Query: query, Attempts: attempts, Err: lastErr}
}

// DeriveInsight never fails: errors are logged and replaced by
// FallbackResponse.
func (s *Service) DeriveInsight(ctx context.Context, query string) string {
	out, err := s.Derive(ctx, query)
	if err != nil {
		s.logger.Error("error in agent derivation",
			zap.String("backend", s.name),
			zap.String("query", query),
			zap.Error(err))
		return FallbackResponse
	}
	return out
}
