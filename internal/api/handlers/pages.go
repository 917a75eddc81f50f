package handlers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/api/middleware"
	"github.com/drfirst/clinical-intel/internal/charts"
	"github.com/drfirst/clinical-intel/internal/dashboard"
	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/internal/view"
)

// InvalidCredentialsMessage is shown on the login form after a rejected login.
const InvalidCredentialsMessage = "Invalid credentials"

//go:embed templates/*.html
var templateFS embed.FS

type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() *pageRenderer {
	funcs := template.FuncMap{
		"chartJSON": func(c *charts.Chart) (string, error) {
			if c == nil {
				return "{}", nil
			}
			return c.JSON()
		},
	}
	return &pageRenderer{
		tmpl: template.Must(template.New("page.html").Funcs(funcs).ParseFS(templateFS, "templates/*.html")),
	}
}

type patientOption struct {
	ID       string
	Name     string
	Selected bool
}

type pageData struct {
	Page     dashboard.Page
	Session  SessionResponse
	Error    string
	Patients []patientOption
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, data pageData) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, "page.html", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Index handles GET /: the view selected by the session's role.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, middleware.CurrentSession(r.Context()), "")
}

// LoginForm handles POST /login
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sess, err := h.transition(w, r, session.Login(r.PostForm.Get("username"), r.PostForm.Get("password")))
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		h.renderPage(w, r, http.StatusUnauthorized, sess, InvalidCredentialsMessage)
	case err != nil:
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutForm handles POST /logout
func (h *Handler) LogoutForm(w http.ResponseWriter, r *http.Request) {
	if _, err := h.transition(w, r, session.Logout()); err != nil {
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SelectPatientForm handles POST /patient
func (h *Handler) SelectPatientForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	_, err := h.transition(w, r, session.SelectPatient(r.PostForm.Get("patient_id")))
	switch {
	case errors.Is(err, session.ErrForbidden):
		http.Error(w, "patient selection requires the doctor role", http.StatusForbidden)
	case err != nil:
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, sess session.Session, errMsg string) {
	ctx := r.Context()
	page := h.page(ctx, sess, r.URL.Query().Get("patient"))

	data := pageData{Page: page, Session: sessionResponse(sess), Error: errMsg}
	if page.View == view.Doctor {
		data.Patients = h.patientOptions(ctx, page.SelectedPatient)
	}

	if err := h.pages.render(w, status, data); err != nil {
		h.logger.Error("failed to render page",
			zap.String("view", string(page.View)),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) patientOptions(ctx context.Context, selected string) []patientOption {
	heroes := h.insights.HeroPatients(ctx)
	var out []patientOption
	for _, id := range patient.IDs(heroes) {
		out = append(out, patientOption{
			ID:       id,
			Name:     patient.ProfileFrom(id, heroes.Field(id)).Name,
			Selected: id == selected,
		})
	}
	return out
}
