package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/insight"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS patient_records (
		patient_id TEXT PRIMARY KEY,
		record     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresCatalog reads patient records from a clinical data store. Each row
// holds the same JSON shape as a patient_records entry of the insight file.
type PostgresCatalog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewPostgresCatalog creates a catalog over pool
func NewPostgresCatalog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresCatalog{pool: pool, logger: logger, tracer: otel.Tracer("patient-catalog")}
}

// Migrate creates the patient_records table if needed
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create patient_records: %w", err)
	}
	return nil
}

// Record returns the stored record, or insight.Absent when none exists
func (c *PostgresCatalog) Record(ctx context.Context, patientID string) (insight.Value, error) {
	ctx, span := c.tracer.Start(ctx, "patient_record",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	var raw []byte
	err := c.pool.QueryRow(ctx,
		`SELECT record FROM patient_records WHERE patient_id = $1`, patientID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return insight.Absent, nil
	}
	if err != nil {
		span.RecordError(err)
		return insight.Absent, fmt.Errorf("query patient record: %w", err)
	}

	rec, err := insight.ParseValue(raw)
	if err != nil {
		return insight.Absent, fmt.Errorf("decode patient record %s: %w", patientID, err)
	}
	return rec, nil
}

// Upsert stores records keyed by patient ID in one transaction
func (c *PostgresCatalog) Upsert(ctx context.Context, records insight.Value) (int, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	n := 0
	for _, id := range records.Keys() {
		payload, err := records.Field(id).MarshalJSON()
		if err != nil {
			return 0, fmt.Errorf("encode record %s: %w", id, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO patient_records (patient_id, record, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (patient_id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
		`, id, payload)
		if err != nil {
			return 0, fmt.Errorf("upsert record %s: %w", id, err)
		}
		n++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	c.logger.Info("patient records seeded", zap.Int("count", n))
	return n, nil
}
