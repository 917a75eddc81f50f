package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/pkg/circuitbreaker"
	"github.com/drfirst/clinical-intel/pkg/workerpool"
)

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// InsightReadiness reports the state of the insight file
type InsightReadiness struct {
	Path   string   `json:"path"`
	OK     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// ReadyResponse is the body of GET /ready
type ReadyResponse struct {
	Status   string                      `json:"status"`
	Insights InsightReadiness            `json:"insights"`
	Agent    circuitbreaker.HealthStatus `json:"agent"`
	Pool     *workerpool.Stats           `json:"agent_pool,omitempty"`
}

// Ready handles GET /ready. An unreadable insight file makes the service
// not ready; shape issues and an open agent breaker are reported but the
// pages still render around them.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status:   "ready",
		Insights: InsightReadiness{Path: h.insights.Path(), OK: true},
		Agent:    h.agent.Health(),
	}

	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Pool = &stats
	}

	_, issues, err := h.insights.Check(r.Context())
	if err != nil {
		h.logger.Warn("insight file not readable", zap.String("path", h.insights.Path()), zap.Error(err))
		resp.Status = "not ready"
		resp.Insights.OK = false
		resp.Insights.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	for _, issue := range issues {
		resp.Insights.Issues = append(resp.Insights.Issues, issue.String())
	}
	resp.Insights.OK = len(issues) == 0
	if !resp.Agent.Healthy {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}
