package collection

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxpad/internal/storage"
)

func finalized(t *testing.T, patient string, at time.Time) prescription.Prescription {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	age := 45
	c := prescription.NewDraft().Content
	c.DoctorDetails.FullName = "Dr. Sarah Johnson"
	c.PatientDetails = prescription.PatientDetails{Name: patient, Age: &age, Gender: "male"}
	c.Diagnosis = "Hypertension"
	c.LabTests = []string{"CBC", "CBC"}
	c.FollowUpDate = "2024-03-31"
	c.CustomFields = []prescription.CustomField{{Label: "Allergies", Value: "None"}}
	c.Medications = []prescription.Medication{
		{MedicationName: "Lisinopril 10mg", Dosage: "1 tablet", Frequency: "Once daily"},
		{MedicationName: "Metformin 500mg", Dosage: "1 tablet", Frequency: "Twice daily", Instructions: "With meals"},
	}
	return prescription.New(id.String(), at, c)
}

// exerciseCollection runs the behaviour every backend must share
func exerciseCollection(t *testing.T, c Collection) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := finalized(t, "John Smith", base)
	second := finalized(t, "Mary Johnson", base.Add(time.Hour))

	require.NoError(t, c.Append(ctx, first))
	require.NoError(t, c.Append(ctx, second))

	list, err := c.List(ctx, Filter{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(list), 2)
	require.Equal(t, second.ID, list[0].ID, "most recent first")
	require.Equal(t, first.ID, list[1].ID)

	got, err := c.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first, got)

	list, err = c.List(ctx, Filter{Name: "  JOHN "})
	require.NoError(t, err)
	var ids []string
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID, "Johnson contains john")

	list, err = c.List(ctx, Filter{Name: "mary"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, second.ID, list[0].ID)

	require.NoError(t, c.Remove(ctx, first.ID))
	_, err = c.Get(ctx, first.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, c.Remove(ctx, first.ID), "removing a missing id is a no-op")

	require.NoError(t, c.Remove(ctx, second.ID))
}

func TestSlotCollection(t *testing.T) {
	exerciseCollection(t, NewSlotCollection(storage.NewMemorySlot(), nil))
}

func TestSlotCollectionCorruptReadsEmpty(t *testing.T) {
	ctx := context.Background()
	slot := storage.NewMemorySlot()
	require.NoError(t, slot.Set(ctx, DefaultKey, "{not json"))
	c := NewSlotCollection(slot, nil)

	list, err := c.List(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, list)

	p := finalized(t, "John Smith", time.Now())
	require.NoError(t, c.Append(ctx, p))
	list, err = c.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSlotCollectionEmptyListIsNotNil(t *testing.T) {
	list, err := NewSlotCollection(storage.NewMemorySlot(), nil).List(context.Background(), Filter{Name: "x"})
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	list := []prescription.Prescription{
		finalized(t, "a", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		finalized(t, "b", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)),
		finalized(t, "c", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)),
		finalized(t, "d", time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC)),
	}
	list[3].Status = prescription.StatusArchived

	require.Equal(t, Stats{Total: 4, ThisMonth: 2, Completed: 3}, Summarize(list, now))
	require.Equal(t, Stats{}, Summarize(nil, now))
}

func TestPostgresCollection(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	require.NoError(t, postgres.Migrate(ctx, pool))

	c := NewPostgresCollection(pool, nil)
	exerciseCollection(t, c)

	p := finalized(t, "Outbox Patient", time.Now())
	require.NoError(t, c.Append(ctx, p))
	require.NoError(t, c.Remove(ctx, p.ID))

	var types []string
	rows, err := pool.Query(ctx, `SELECT event_type FROM outbox WHERE aggregate_id = $1 ORDER BY id`, p.ID)
	require.NoError(t, err)
	for rows.Next() {
		var et string
		require.NoError(t, rows.Scan(&et))
		types = append(types, et)
	}
	rows.Close()
	require.Equal(t, []string{
		string(prescription.EventPrescriptionFinalized),
		string(prescription.EventPrescriptionDeleted),
	}, types)
}
