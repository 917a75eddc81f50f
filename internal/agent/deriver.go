// Package agent is the seam where narrative insights are derived from a
// free-text query. The default backend is a deterministic stub; a language
// model backend can be swapped in without touching callers.
package agent

import (
	"context"
	"fmt"
)

// Deriver produces an insight for a query
type Deriver interface {
	Derive(ctx context.Context, query string) (string, error)
}

// DeriverFunc adapts a function to Deriver
type DeriverFunc func(ctx context.Context, query string) (string, error)

// Derive calls f
func (f DeriverFunc) Derive(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// StubDeriver answers every query with a fixed template. It never fails.
type StubDeriver struct{}

// Derive returns the simulated response for query
func (StubDeriver) Derive(_ context.Context, query string) (string, error) {
	return Simulate(query), nil
}

// Simulate renders the stub response; query appears verbatim.
func Simulate(query string) string {
	return fmt.Sprintf("Simulated AI response for query: '%s' (enable LLM for real derivation).", query)
}
