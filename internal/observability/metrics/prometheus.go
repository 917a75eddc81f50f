// Package metrics provides Prometheus metrics for the dashboard service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login results
const (
	LoginSuccess     = "success"
	LoginRejected    = "rejected"
	LoginRateLimited = "rate_limited"
)

// Metrics holds all application metrics
type Metrics struct {
	InsightLookups      *prometheus.CounterVec
	InsightLoadFailures prometheus.Counter
	Logins              *prometheus.CounterVec
	Logouts             prometheus.Counter
	Derivations         *prometheus.CounterVec
	PageRenders         *prometheus.CounterVec
	RenderDuration      *prometheus.HistogramVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// New creates all metrics and registers them on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers metrics on reg; gatherer backs Handler
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		InsightLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_lookups_total",
			Help: "Insight lookups by section and result (hit or placeholder)",
		}, []string{"section", "result"}),
		InsightLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insight_load_failures_total",
			Help: "Insight document reads that fell back to an empty document",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_logouts_total",
			Help: "Total logouts",
		}),
		Derivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_derivations_total",
			Help: "Agent derivations by backend and result",
		}, []string{"backend", "result"}),
		PageRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_page_renders_total",
			Help: "Rendered pages by view",
		}, []string{"view"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_render_duration_seconds",
			Help:    "Page composition duration by view",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"view"}),
		registerer: reg,
		gatherer:   gatherer,
	}

	reg.MustRegister(
		m.InsightLookups,
		m.InsightLoadFailures,
		m.Logins,
		m.Logouts,
		m.Derivations,
		m.PageRenders,
		m.RenderDuration,
	)

	return m
}

// InsightLookup implements insight.Recorder
func (m *Metrics) InsightLookup(section string, hit bool) {
	result := "placeholder"
	if hit {
		result = "hit"
	}
	m.InsightLookups.WithLabelValues(section, result).Inc()
}

// InsightLoadFailed implements insight.Recorder
func (m *Metrics) InsightLoadFailed() {
	m.InsightLoadFailures.Inc()
}

// Derivation implements agent.Recorder
func (m *Metrics) Derivation(backend string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Derivations.WithLabelValues(backend, result).Inc()
}

// Login records a login attempt
func (m *Metrics) Login(result string) {
	m.Logins.WithLabelValues(result).Inc()
}

// Logout records a logout
func (m *Metrics) Logout() {
	m.Logouts.Inc()
}

// PageRendered records one composed page
func (m *Metrics) PageRendered(view string, d time.Duration) {
	m.PageRenders.WithLabelValues(view).Inc()
	m.RenderDuration.WithLabelValues(view).Observe(d.Seconds())
}

// RegisterBreaker exports a breaker's state (0=closed, 1=half-open, 2=open)
func (m *Metrics) RegisterBreaker(name string, state func() string) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "circuit_breaker_state",
		Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		ConstLabels: prometheus.Labels{"name": name},
	}, func() float64 {
		switch state() {
		case "open":
			return 2
		case "half-open":
			return 1
		}
		return 0
	}))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{Registry: m.registerer})
}
