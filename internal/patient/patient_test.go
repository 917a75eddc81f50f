package patient

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drfirst/clinical-intel/internal/insight"
)

const recordsDoc = `{
  "doctor": {
    "hero_patients": {
      "p-1": {
        "name": "Jane Doe",
        "age": 54,
        "gender": "F",
        "archetype": "Rising Risk",
        "risk_score": 0.72,
        "ai_recommended_focus": ["BP control", "Weight"],
        "co_pilot_prompts": {"Why rising?": "Missed follow-ups", "Next step?": "Schedule A1c"}
      }
    }
  },
  "patient_records": {
    "p-1": {
      "last_visit_summary": "Routine follow-up.",
      "conditions": [
        {"Condition": "Hypertension", "Status": "Active"},
        {"Condition": "Prediabetes", "Status": "Active", "Onset": "2021"}
      ],
      "observations": {"Metric": ["BP", "BMI"], "Value": ["150/95", 31.2]},
      "insurance": {"Payer": "Medicare", "Plan": "Part B"}
    }
  }
}`

func newService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ai_insights.json")
	if err := os.WriteFile(path, []byte(recordsDoc), 0o600); err != nil {
		t.Fatalf("write insights: %v", err)
	}
	return NewService(NewDocumentCatalog(insight.NewStore(path, nil)), nil)
}

func TestConditionsFromRowList(t *testing.T) {
	svc := newService(t)

	got := svc.Conditions(context.Background(), "p-1")
	wantCols := []string{"Condition", "Status", "Onset"}
	if len(got.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", got.Columns, wantCols)
	}
	for i, c := range wantCols {
		if got.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, got.Columns[i], c)
		}
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if got.Rows[0][2] != "" {
		t.Errorf("missing cell = %q, want empty", got.Rows[0][2])
	}
	if got.Rows[1][2] != "2021" {
		t.Errorf("onset = %q, want 2021", got.Rows[1][2])
	}
}

func TestObservationsFromColumns(t *testing.T) {
	svc := newService(t)

	got := svc.Observations(context.Background(), "p-1")
	values := got.Column("Value")
	if len(values) != 2 || values[0] != "150/95" || values[1] != "31.2" {
		t.Errorf("Value column = %v", values)
	}
}

func TestInsuranceFromScalars(t *testing.T) {
	svc := newService(t)

	got := svc.Insurance(context.Background(), "p-1")
	if len(got.Columns) != 2 || got.Columns[0] != "Field" {
		t.Fatalf("columns = %v", got.Columns)
	}
	if len(got.Rows) != 2 || got.Rows[0][1] != "Medicare" {
		t.Errorf("rows = %v", got.Rows)
	}
}

func TestUnknownPatientYieldsEmptyTables(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tables := []Table{
		svc.Conditions(ctx, "nobody"),
		svc.Observations(ctx, "nobody"),
		svc.Encounters(ctx, "nobody"),
		svc.CareGaps(ctx, "nobody"),
		svc.Insurance(ctx, "nobody"),
		svc.Medications(ctx, "nobody"),
	}
	for i, tbl := range tables {
		if !tbl.Empty() {
			t.Errorf("table %d for unknown patient has %d rows", i, len(tbl.Rows))
		}
	}

	if got := svc.LastVisitSummary(ctx, "nobody"); got != NoVisitSummary {
		t.Errorf("LastVisitSummary = %q, want %q", got, NoVisitSummary)
	}
	if got := svc.LastVisitSummary(ctx, "p-1"); got != "Routine follow-up." {
		t.Errorf("LastVisitSummary = %q", got)
	}
}

func TestTableRejectsUnknownName(t *testing.T) {
	svc := newService(t)

	_, err := svc.Table(context.Background(), "p-1", "billing")
	if !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("err = %v, want ErrUnknownTable", err)
	}

	tables := svc.Tables(context.Background(), "p-1")
	if len(tables) != len(TableNames) {
		t.Errorf("Tables returned %d entries, want %d", len(tables), len(TableNames))
	}
}

type failingCatalog struct{}

func (failingCatalog) Record(context.Context, string) (insight.Value, error) {
	return insight.Absent, errors.New("connection refused")
}

func TestCatalogErrorDegrades(t *testing.T) {
	svc := NewService(failingCatalog{}, nil)

	if got := svc.Conditions(context.Background(), "p-1"); !got.Empty() {
		t.Errorf("expected empty table on catalog error, got %v", got.Rows)
	}
	if got := svc.LastVisitSummary(context.Background(), "p-1"); got != NoVisitSummary {
		t.Errorf("LastVisitSummary = %q", got)
	}
}

func TestProfileFrom(t *testing.T) {
	v, err := insight.ParseValue([]byte(recordsDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	heroes := v.Path("doctor", "hero_patients")

	ids := IDs(heroes)
	if len(ids) != 1 || ids[0] != "p-1" {
		t.Fatalf("IDs = %v", ids)
	}

	p := ProfileFrom("p-1", heroes.Field("p-1"))
	if p.Name != "Jane Doe" || p.Age != "54" {
		t.Errorf("name/age = %q/%q", p.Name, p.Age)
	}
	if p.State != insight.PatientPlaceholder {
		t.Errorf("State = %q, want placeholder", p.State)
	}
	if p.RiskScore == nil || *p.RiskScore != 0.72 {
		t.Errorf("RiskScore = %v", p.RiskScore)
	}
	if len(p.RecommendedFocus) != 2 {
		t.Errorf("RecommendedFocus = %v", p.RecommendedFocus)
	}
	if len(p.CoPilot) != 2 || p.CoPilot[0].Question != "Why rising?" {
		t.Errorf("CoPilot = %v", p.CoPilot)
	}
}

func TestPostgresCatalog(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	catalog := NewPostgresCatalog(pool, nil)
	if err := catalog.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	records, err := insight.ParseValue([]byte(`{"pg-test":{"conditions":[{"Condition":"Asthma"}]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n, err := catalog.Upsert(ctx, records); err != nil || n != 1 {
		t.Fatalf("Upsert = %d, %v", n, err)
	}

	svc := NewService(catalog, nil)
	if got := svc.Conditions(ctx, "pg-test").Column("Condition"); len(got) != 1 || got[0] != "Asthma" {
		t.Errorf("conditions = %v", got)
	}
	if got := svc.Conditions(ctx, "pg-missing"); !got.Empty() {
		t.Errorf("missing patient returned rows")
	}
}
