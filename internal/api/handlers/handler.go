// Package handlers provides the HTTP handlers for the dashboard service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/agent"
	"github.com/drfirst/clinical-intel/internal/api/middleware"
	"github.com/drfirst/clinical-intel/internal/dashboard"
	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/observability/metrics"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
	"github.com/drfirst/clinical-intel/pkg/workerpool"
)

// EventPublisher receives every session transition for the audit trail.
type EventPublisher interface {
	Publish(ctx context.Context, ev *session.Event)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Insights    *insight.Store
	Patients    *patient.Service
	Agent       *agent.Service
	Pool        *workerpool.Pool
	Auth        *session.Authenticator
	Sessions    *middleware.Sessions
	Metrics     *metrics.Metrics
	LoginLimit  *middleware.IPRateLimiter
	Audit       EventPublisher
	Logger      *zap.Logger
	ServiceName string
	Origins     []string
}

// Handler serves the dashboard pages and the JSON API.
type Handler struct {
	insights *insight.Store
	patients *patient.Service
	agent    *agent.Service
	pool     *workerpool.Pool
	builder  *dashboard.Builder
	auth     *session.Authenticator
	sessions *middleware.Sessions
	metrics  *metrics.Metrics
	limiter  *middleware.IPRateLimiter
	pages    *pageRenderer
	audit    EventPublisher
	logger   *zap.Logger
	service  string
	origins  []string
}

// New creates the handler set
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Auth == nil {
		d.Auth = session.NewAuthenticator()
	}
	if d.LoginLimit == nil {
		d.LoginLimit = middleware.NewIPRateLimiter(10, 5)
	}
	if d.ServiceName == "" {
		d.ServiceName = "clinical-dashboard"
	}
	if len(d.Origins) == 0 {
		d.Origins = []string{"*"}
	}
	d.LoginLimit.OnLimit(func(*http.Request) { d.Metrics.Login(metrics.LoginRateLimited) })

	builder := dashboard.NewBuilder(d.Insights, d.Patients, d.Agent, d.Logger).WithPool(d.Pool)
	return &Handler{
		insights: d.Insights,
		patients: d.Patients,
		agent:    d.Agent,
		pool:     d.Pool,
		builder:  builder,
		auth:     d.Auth,
		sessions: d.Sessions,
		metrics:  d.Metrics,
		limiter:  d.LoginLimit,
		pages:    newPageRenderer(),
		audit:    d.Audit,
		logger:   d.Logger,
		service:  d.ServiceName,
		origins:  d.Origins,
	}
}

// Router builds the complete route tree with the middleware chain.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	// Logger wraps Recover so recovered panics are access-logged as 500s
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Recover(h.logger))
	r.Use(middleware.Tracing(h.service))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Middleware)

		r.Get("/", h.Index)
		r.With(h.limiter.Middleware).Post("/login", h.LoginForm)
		r.Post("/logout", h.LogoutForm)
		r.With(middleware.RequireRole(session.RoleDoctor)).Post("/patient", h.SelectPatientForm)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(h.origins))
		r.Use(h.sessions.Middleware)
		h.apiRoutes(r)
	})

	return r
}

// transition applies a to the request's session and commits the result.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, a session.Action) (session.Session, error) {
	ctx, span := otel.Tracer("session-handler").Start(r.Context(), "session."+string(a.Type))
	defer span.End()

	current := middleware.CurrentSession(ctx)
	next, ev, err := session.Apply(current, a, h.auth)
	h.logEvent(ctx, ev)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.metrics.Login(metrics.LoginRejected)
		}
		return current, err
	}
	if err := h.sessions.Commit(w, r, next); err != nil {
		span.RecordError(err)
		h.logger.Error("failed to commit session",
			zap.String("session_id", next.ID),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		return current, err
	}

	span.SetAttributes(attribute.String("session.role", next.Role.String()))
	switch a.Type {
	case session.ActionLogin:
		h.metrics.Login(metrics.LoginSuccess)
	case session.ActionLogout:
		h.metrics.Logout()
	}
	return next, nil
}

func (h *Handler) logEvent(ctx context.Context, ev *session.Event) {
	if ev == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("session_id", ev.SessionID),
		zap.String("from", ev.From.String()),
		zap.String("to", ev.To.String()),
		zap.Int("version", ev.Version),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	}
	if ev.Username != "" {
		fields = append(fields, zap.String("username", ev.Username))
	}
	if ev.PatientID != "" {
		fields = append(fields, zap.String("patient_id", ev.PatientID))
	}
	if ev.EventType == session.EventLoginRejected {
		h.logger.Warn(string(ev.EventType), fields...)
	} else {
		h.logger.Info(string(ev.EventType), fields...)
	}
	if h.audit != nil {
		h.audit.Publish(ctx, ev)
	}
}

// page builds the page for the current session.
func (h *Handler) page(ctx context.Context, sess session.Session, requestedPatient string) dashboard.Page {
	id := view.Select(sess.Role)
	patientID := sess.PatientID
	if requestedPatient != "" {
		patientID = requestedPatient
	}

	start := time.Now()
	page := h.builder.Build(ctx, id, patientID)
	h.metrics.PageRendered(string(id), time.Since(start))
	return page
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
