package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/infrastructure/postgres"
)

// PostgresCollection stores prescriptions in Postgres. Appends and removals
// write a lifecycle event to the outbox in the same transaction.
type PostgresCollection struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewPostgresCollection creates a collection over pool. The schema must
// already be applied with postgres.Migrate.
func NewPostgresCollection(pool *pgxpool.Pool, logger *zap.Logger) *PostgresCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresCollection{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("collection"),
		now:    time.Now,
	}
}

const selectPrescription = `
	SELECT id, created_at, status, doctor_details, patient_details,
	       diagnosis, symptoms, lab_tests,
	       COALESCE(to_char(follow_up_date, 'YYYY-MM-DD'), ''),
	       additional_notes, custom_fields
	FROM prescriptions
`

func (c *PostgresCollection) Append(ctx context.Context, p prescription.Prescription) error {
	ctx, span := c.tracer.Start(ctx, "collection_append",
		trace.WithAttributes(attribute.String("prescription_id", p.ID)))
	defer span.End()

	evt, err := prescription.FinalizedEvent(p)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	labTests := p.LabTests
	if labTests == nil {
		labTests = []string{}
	}
	customFields := p.CustomFields
	if customFields == nil {
		customFields = []prescription.CustomField{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO prescriptions
		(id, created_at, status, doctor_details, patient_name, patient_details,
		 diagnosis, symptoms, lab_tests, follow_up_date, additional_notes, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::date, $11, $12)
	`,
		p.ID, p.CreatedAt, string(p.Status), p.DoctorDetails, p.PatientDetails.Name, p.PatientDetails,
		p.Diagnosis, p.Symptoms, labTests, p.FollowUpDate, p.AdditionalNotes, customFields,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert prescription: %w", err)
	}

	for i, m := range p.Medications {
		_, err := tx.Exec(ctx, `
			INSERT INTO prescription_medications
			(prescription_id, position, medication_name, dosage, frequency, duration, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, i, m.MedicationName, m.Dosage, m.Frequency, m.Duration, m.Instructions)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("insert medication %d: %w", i, err)
		}
	}

	if err := postgres.WriteEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *PostgresCollection) Remove(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "collection_remove",
		trace.WithAttributes(attribute.String("prescription_id", id)))
	defer span.End()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var deletedID string
	err = tx.QueryRow(ctx, `DELETE FROM prescriptions WHERE id = $1 RETURNING id`, id).Scan(&deletedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete prescription: %w", err)
	}

	evt, err := prescription.DeletedEvent(deletedID, c.now())
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if err := postgres.WriteEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *PostgresCollection) Get(ctx context.Context, id string) (prescription.Prescription, error) {
	ctx, span := c.tracer.Start(ctx, "collection_get")
	defer span.End()

	p, err := scanPrescription(c.pool.QueryRow(ctx, selectPrescription+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return prescription.Prescription{}, ErrNotFound
	}
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("get prescription: %w", err)
	}

	meds, err := c.medications(ctx, []string{p.ID})
	if err != nil {
		return prescription.Prescription{}, err
	}
	p.Medications = nonNil(meds[p.ID])
	return p, nil
}

func (c *PostgresCollection) List(ctx context.Context, f Filter) ([]prescription.Prescription, error) {
	ctx, span := c.tracer.Start(ctx, "collection_list")
	defer span.End()

	rows, err := c.pool.Query(ctx, selectPrescription+`
		WHERE $1 = '' OR strpos(lower(patient_name), lower($1)) > 0
		ORDER BY created_at DESC, id DESC
	`, strings.TrimSpace(f.Name))
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	out := []prescription.Prescription{}
	var ids []string
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	meds, err := c.medications(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Medications = nonNil(meds[out[i].ID])
	}
	return out, nil
}

func (c *PostgresCollection) medications(ctx context.Context, ids []string) (map[string][]prescription.Medication, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT prescription_id, medication_name, dosage, frequency, duration, instructions
		FROM prescription_medications
		WHERE prescription_id = ANY($1)
		ORDER BY prescription_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]prescription.Medication, len(ids))
	for rows.Next() {
		var (
			id string
			m  prescription.Medication
		)
		if err := rows.Scan(&id, &m.MedicationName, &m.Dosage, &m.Frequency, &m.Duration, &m.Instructions); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out[id] = append(out[id], m)
	}
	return out, rows.Err()
}

func scanPrescription(row pgx.Row) (prescription.Prescription, error) {
	var (
		p      prescription.Prescription
		status string
	)
	err := row.Scan(
		&p.ID, &p.CreatedAt, &status, &p.DoctorDetails, &p.PatientDetails,
		&p.Diagnosis, &p.Symptoms, &p.LabTests, &p.FollowUpDate,
		&p.AdditionalNotes, &p.CustomFields,
	)
	if err != nil {
		return p, err
	}
	p.Status = prescription.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	if p.LabTests == nil {
		p.LabTests = []string{}
	}
	if p.CustomFields == nil {
		p.CustomFields = []prescription.CustomField{}
	}
	return p, nil
}

func nonNil(meds []prescription.Medication) []prescription.Medication {
	if meds == nil {
		return []prescription.Medication{}
	}
	return meds
}
