package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/api/middleware"
	"github.com/drfirst/clinical-intel/internal/charts"
	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
)

func (h *Handler) apiRoutes(r chi.Router) {
	r.Get("/session", h.GetSession)
	r.With(h.limiter.Middleware).Post("/session/login", h.Login)
	r.Post("/session/logout", h.Logout)
	r.Get("/dashboard", h.Dashboard)

	r.With(middleware.RequireRole(session.RoleAdmin, session.RoleDoctor)).
		Get("/insights/{section}/{key}", h.GetInsight)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(session.RoleAdmin))
		r.Post("/derive", h.Derive)
		r.Get("/charts/{name}", h.GetChart)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(session.RoleDoctor))
		r.Get("/patients", h.ListPatients)
		r.Get("/patients/{id}/tables/{table}", h.GetPatientTable)
	})
}

// SessionResponse describes the caller's session
type SessionResponse struct {
	ID            string  `json:"id"`
	Role          string  `json:"role"`
	Authenticated bool    `json:"authenticated"`
	View          view.ID `json:"view"`
	PatientID     string  `json:"patient_id,omitempty"`
	Version       int     `json:"version"`
}

func sessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		Role:          s.Role.String(),
		Authenticated: s.Role.Authenticated(),
		View:          view.Select(s.Role),
		PatientID:     s.PatientID,
		Version:       s.Version,
	}
}

// GetSession handles GET /api/v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse(middleware.CurrentSession(r.Context())))
}

// LoginRequest is the body of POST /api/v1/session/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.transition(w, r, session.Login(req.Username, req.Password))
	if errors.Is(err, session.ErrInvalidCredentials) {
		middleware.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		middleware.JSONError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// Logout handles POST /api/v1/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.transition(w, r, session.Logout())
	if err != nil {
		middleware.JSONError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// Dashboard handles GET /api/v1/dashboard. It returns the page model of the
// view the session's role selects.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, h.page(ctx, middleware.CurrentSession(ctx), r.URL.Query().Get("patient")))
}

// InsightResponse carries one insight value
type InsightResponse struct {
	Section string        `json:"section"`
	Key     string        `json:"key"`
	Found   bool          `json:"found"`
	Value   insight.Value `json:"value"`
}

// GetInsight handles GET /api/v1/insights/{section}/{key}. Missing values
// are returned as the placeholder text, never as an error.
func (h *Handler) GetInsight(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	key := chi.URLParam(r, "key")
	v := h.insights.Get(r.Context(), section, key)
	writeJSON(w, http.StatusOK, InsightResponse{
		Section: section,
		Key:     key,
		Found:   !v.IsAbsent(),
		Value:   v,
	})
}

// DeriveRequest is the body of POST /api/v1/derive
type DeriveRequest struct {
	Query string `json:"query"`
}

// DeriveResponse is the agent's answer
type DeriveResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Backend string `json:"backend"`
}

// Derive handles POST /api/v1/derive
func (h *Handler) Derive(w http.ResponseWriter, r *http.Request) {
	var req DeriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		middleware.JSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer := h.agent.DeriveInsight(r.Context(), req.Query)
	h.logger.Info("derived insight",
		zap.String("backend", h.agent.Backend()),
		zap.String("request_id", middleware.GetRequestID(r.Context())))

	writeJSON(w, http.StatusOK, DeriveResponse{Query: req.Query, Answer: answer, Backend: h.agent.Backend()})
}

// GetChart handles GET /api/v1/charts/{name}: one admin chart as a
// Plotly figure. Charts whose data is missing come back empty.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schema := h.insights.Schema()
	admin := func(key string) insight.Value {
		return schema.Conform(insight.SectionAdmin, key, h.insights.Get(ctx, insight.SectionAdmin, key))
	}

	var c charts.Chart
	switch chi.URLParam(r, "name") {
	case "risk-distribution":
		c = charts.RiskDistribution(admin("risk_distribution"))
	case "risk-by-age":
		c = charts.RiskByAge(admin("risk_by_age"))
	case "cost-treemap":
		c = charts.CostTreemapFrom(admin("cost_treemap_data"))
	case "equity-heatmap":
		c = charts.EquityHeatmap(admin("equity_heatmap").Field("disparities"))
	case "care-flow":
		c = charts.CareFlowSankey()
	case "hospitalization-risk":
		c = charts.HospitalizationScatter(admin("hospitalization_risk_distribution"))
	default:
		middleware.JSONError(w, http.StatusNotFound, "unknown chart")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PatientSummary lists one hero patient
type PatientSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	Archetype string `json:"archetype"`
}

// ListPatients handles GET /api/v1/patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	heroes := h.insights.HeroPatients(r.Context())
	out := make([]PatientSummary, 0, len(heroes.Keys()))
	for _, id := range patient.IDs(heroes) {
		p := patient.ProfileFrom(id, heroes.Field(id))
		out = append(out, PatientSummary{
			ID:        p.ID,
			Name:      p.Name,
			Age:       p.Age,
			Gender:    p.Gender,
			Archetype: p.Archetype,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": out})
}

// GetPatientTable handles GET /api/v1/patients/{id}/tables/{table}. An
// unknown patient yields an empty table; an unknown table name is a 404.
func (h *Handler) GetPatientTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "table")

	t, err := h.patients.Table(r.Context(), id, name)
	if errors.Is(err, patient.ErrUnknownTable) {
		middleware.JSONError(w, http.StatusNotFound, "unknown table "+name)
		return
	}
	if err != nil {
		middleware.JSONError(w, http.StatusInternalServerError, "failed to load table")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
