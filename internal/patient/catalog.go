package patient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/insight"
)

// NoVisitSummary is shown when a patient has no last-visit summary.
const NoVisitSummary = "No recent visit summary available."

// ErrUnknownTable is returned for a table name outside TableNames.
var ErrUnknownTable = errors.New("unknown patient table")

// Catalog returns the stored record of one patient. A patient that does not
// exist yields insight.Absent and no error.
type Catalog interface {
	Record(ctx context.Context, patientID string) (insight.Value, error)
}

// DocumentCatalog reads records from the patient_records section of the
// insight document, keyed like doctor.hero_patients.
type DocumentCatalog struct {
	store *insight.Store
}

// NewDocumentCatalog creates a catalog backed by store
func NewDocumentCatalog(store *insight.Store) *DocumentCatalog {
	return &DocumentCatalog{store: store}
}

// Record returns patient_records.<patientID>
func (c *DocumentCatalog) Record(ctx context.Context, patientID string) (insight.Value, error) {
	return c.store.Get(ctx, insight.SectionPatientRecords, patientID), nil
}

// Service answers per-patient lookups. Every failure degrades to an empty
// table or fallback text so one bad record never breaks a page.
type Service struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewService creates a patient service
func NewService(catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, logger: logger}
}

func (s *Service) record(ctx context.Context, patientID string) insight.Value {
	rec, err := s.catalog.Record(ctx, patientID)
	if err != nil {
		s.logger.Error("patient record lookup failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		return insight.Absent
	}
	return rec
}

// Table returns one evidence table by name.
func (s *Service) Table(ctx context.Context, patientID, name string) (Table, error) {
	if !IsTableName(name) {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return TableFrom(s.record(ctx, patientID).Field(name)), nil
}

// Tables returns every evidence table keyed by name.
func (s *Service) Tables(ctx context.Context, patientID string) map[string]Table {
	rec := s.record(ctx, patientID)
	out := make(map[string]Table, len(TableNames))
	for _, name := range TableNames {
		out[name] = TableFrom(rec.Field(name))
	}
	return out
}

func (s *Service) table(ctx context.Context, patientID, name string) Table {
	t, _ := s.Table(ctx, patientID, name)
	return t
}

// Conditions returns the patient's conditions.
func (s *Service) Conditions(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableConditions)
}

// Observations returns the patient's observations.
func (s *Service) Observations(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableObservations)
}

// Encounters returns the patient's encounters.
func (s *Service) Encounters(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableEncounters)
}

// CareGaps returns the patient's detected care gaps.
func (s *Service) CareGaps(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableCareGaps)
}

// Insurance returns the patient's coverage history.
func (s *Service) Insurance(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableInsurance)
}

// Medications returns the patient's medication continuity.
func (s *Service) Medications(ctx context.Context, patientID string) Table {
	return s.table(ctx, patientID, TableMedications)
}

// LastVisitSummary returns the narrative of the most recent visit.
func (s *Service) LastVisitSummary(ctx context.Context, patientID string) string {
	v := s.record(ctx, patientID).Field("last_visit_summary")
	if !v.Is(insight.KindText) {
		return NoVisitSummary
	}
	return v.String()
}
