// Package integration exercises the dashboard service end to end.
package integration

import (
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/drfirst/clinical-intel/internal/agent"
	"github.com/drfirst/clinical-intel/internal/api/handlers"
	"github.com/drfirst/clinical-intel/internal/api/middleware"
	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/observability/metrics"
	"github.com/drfirst/clinical-intel/internal/patient"
)

const (
	fixturePath = "../fixtures/ai_insights.json"
	firstHero   = "14289f20-085c-4fc8-bdd8-e2074166d91f"
	secondHero  = "8d4c4326-e9de-4f45-9a4c-f8c36bff89ae"
)

func newServer(t *testing.T, store session.Store) *httptest.Server {
	t.Helper()
	if _, err := os.Stat(fixturePath); err != nil {
		t.Skipf("fixture not found: %v", err)
	}

	m := metrics.New()
	insights := insight.NewStore(fixturePath, nil, insight.WithRecorder(m))
	agentSvc, err := agent.NewService(agent.StubDeriver{}, "stub", agent.DefaultConfig(), nil, m)
	if err != nil {
		t.Fatalf("agent service: %v", err)
	}

	h := handlers.New(handlers.Deps{
		Insights: insights,
		Patients: patient.NewService(patient.NewDocumentCatalog(insights), nil),
		Agent:    agentSvc,
		Sessions: middleware.NewSessions(store, session.NewTokens("integration-secret", time.Hour), nil, false),
		Metrics:  m,
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, u string) (int, string) {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func post(t *testing.T, c *http.Client, u string, form url.Values) (int, string) {
	t.Helper()
	resp, err := c.PostForm(u, form)
	if err != nil {
		t.Fatalf("POST %s: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func role(t *testing.T, c *http.Client, base string) string {
	t.Helper()
	_, body := get(t, c, base+"/api/v1/session")
	var s handlers.SessionResponse
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return s.Role
}

func runFlow(t *testing.T, srv *httptest.Server) {
	c := newClient(t)

	// Landing with a system-level insight.
	status, body := get(t, c, srv.URL+"/")
	if status != http.StatusOK || !strings.Contains(body, "System-Level Insight") {
		t.Fatalf("landing: %d", status)
	}

	// Wrong password keeps the session unset.
	status, body = post(t, c, srv.URL+"/login", url.Values{"username": {"doctor"}, "password": {"admin"}})
	if status != http.StatusUnauthorized || !strings.Contains(body, handlers.InvalidCredentialsMessage) {
		t.Fatalf("invalid login: %d", status)
	}
	if r := role(t, c, srv.URL); r != "unset" {
		t.Fatalf("role after invalid login = %q", r)
	}

	// Doctor sees the first hero patient by default.
	status, body = post(t, c, srv.URL+"/login", url.Values{"username": {"doctor"}, "password": {"doctor"}})
	if status != http.StatusOK || !strings.Contains(body, "Marcus Hill") || !strings.Contains(body, "Hypertension") {
		t.Fatalf("doctor dashboard: %d", status)
	}

	// Selecting another patient switches the evidence tables.
	status, body = post(t, c, srv.URL+"/patient", url.Values{"patient_id": {secondHero}})
	if status != http.StatusOK || !strings.Contains(body, "Viral sinusitis") {
		t.Fatalf("patient selection: %d", status)
	}

	// Evidence table through the API.
	status, body = get(t, c, srv.URL+"/api/v1/patients/"+firstHero+"/tables/care_gaps")
	if status != http.StatusOK || !strings.Contains(body, "Missed lipid screening") {
		t.Fatalf("care gaps table: %d %s", status, body)
	}

	// Doctor cannot reach the admin console.
	if status, _ = get(t, c, srv.URL+"/api/v1/charts/risk-distribution"); status != http.StatusForbidden {
		t.Fatalf("doctor chart access: %d", status)
	}

	// Switch to admin.
	status, body = post(t, c, srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"admin"}})
	if status != http.StatusOK || !strings.Contains(body, "AI Strategy Console") {
		t.Fatalf("admin dashboard: %d", status)
	}
	answer := "AI Response: " + agent.Simulate("Why are emergency visits rising among chronic patients?")
	if !strings.Contains(body, html.EscapeString(answer)) {
		t.Error("strategy console answer missing")
	}
	if strings.Contains(body, "data not available") {
		t.Error("admin dashboard shows a data-not-available notice for complete fixture data")
	}

	// Logout returns to the landing page from any role.
	status, body = post(t, c, srv.URL+"/logout", nil)
	if status != http.StatusOK || !strings.Contains(body, `action="/login"`) {
		t.Fatalf("logout: %d", status)
	}
	if r := role(t, c, srv.URL); r != "unset" {
		t.Fatalf("role after logout = %q", r)
	}
}

func TestDashboardFlow(t *testing.T) {
	runFlow(t, newServer(t, session.NewMemoryStore(time.Hour)))
}

func TestDashboardFlowRedisSessions(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	store, err := session.NewRedisStore(redisURL, time.Hour, nil)
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	runFlow(t, newServer(t, store))
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newServer(t, session.NewMemoryStore(time.Hour))
	admin, anon := newClient(t), newClient(t)

	post(t, admin, srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"admin"}})

	if r := role(t, admin, srv.URL); r != "admin" {
		t.Fatalf("admin role = %q", r)
	}
	if r := role(t, anon, srv.URL); r != "unset" {
		t.Fatalf("second client role = %q, want unset", r)
	}
}
