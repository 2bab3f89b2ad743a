// Package draft keeps the single in-progress prescription and mirrors every
// change to a durable slot so an interrupted session can resume.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/storage"
)

// DefaultKey is the slot key holding the serialized draft
const DefaultKey = "prescription_draft"

// Store owns the current draft. Writes go through to the slot; a failed
// write is logged and counted but the in-memory change still applies.
type Store struct {
	mu      sync.Mutex
	current prescription.Draft

	slot    storage.Slot
	key     string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithKey overrides the slot key
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithMetrics records saves and persistence failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store holding a fresh draft. Call Load to resume.
func NewStore(slot storage.Slot, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		current: prescription.NewDraft(),
		slot:    slot,
		key:     DefaultKey,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory draft with the persisted one. A missing,
// unreadable or corrupt entry yields a fresh draft.
func (s *Store) Load(ctx context.Context) prescription.Draft {
	d := s.read(ctx)

	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
	return d.Clone()
}

func (s *Store) read(ctx context.Context) prescription.Draft {
	raw, err := s.slot.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("draft read failed, starting fresh", zap.String("key", s.key), zap.Error(err))
		}
		return prescription.NewDraft()
	}

	var d prescription.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.logger.Warn("stored draft is corrupt, starting fresh", zap.String("key", s.key), zap.Error(err))
		return prescription.NewDraft()
	}
	normalize(&d)
	return d
}

// Save writes d as the current draft and persists it
func (s *Store) Save(ctx context.Context, d prescription.Draft) {
	s.mu.Lock()
	s.current = d.Clone()
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Persist writes the current draft to the slot without changing it
func (s *Store) Persist(ctx context.Context) {
	s.persist(ctx, s.Current())
}

func (s *Store) persist(ctx context.Context, d prescription.Draft) {
	raw, err := json.Marshal(d)
	if err == nil {
		err = s.slot.Set(ctx, s.key, string(raw))
	}
	s.metrics.DraftSaved(err != nil)
	if err != nil {
		s.logger.Error("draft persist failed", zap.String("key", s.key), zap.Error(err))
	}
}

// Clear removes the persisted draft and resets memory to a fresh draft
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.current = prescription.NewDraft()
	s.mu.Unlock()

	if err := s.slot.Remove(ctx, s.key); err != nil {
		s.logger.Error("draft clear failed", zap.String("key", s.key), zap.Error(err))
	}
}

// Reset discards the current draft, starts an empty one and persists it
func (s *Store) Reset(ctx context.Context) prescription.Draft {
	d := prescription.NewDraft()
	s.Save(ctx, d)
	return d
}

// Current returns a deep copy of the in-memory draft
func (s *Store) Current() prescription.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// mutate applies fn under the lock and persists the result
func (s *Store) mutate(ctx context.Context, fn func(d *prescription.Draft)) prescription.Draft {
	s.mu.Lock()
	fn(&s.current)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return snapshot.Clone()
}

// SetStep moves the draft to step n
func (s *Store) SetStep(ctx context.Context, n int) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) { d.Step = n })
}

// UpdateDoctorDetails merges patch into the doctor details
func (s *Store) UpdateDoctorDetails(ctx context.Context, patch prescription.DoctorDetailsPatch) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) { patch.Apply(&d.DoctorDetails) })
}

// UpdatePatientDetails merges patch into the patient details
func (s *Store) UpdatePatientDetails(ctx context.Context, patch prescription.PatientDetailsPatch) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) { patch.Apply(&d.PatientDetails) })
}

// UpdateContent merges patch into the clinical content
func (s *Store) UpdateContent(ctx context.Context, patch prescription.ContentPatch) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) { patch.Apply(&d.Content) })
}

// AddMedication appends an empty medication row
func (s *Store) AddMedication(ctx context.Context) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		d.Medications = append(d.Medications, prescription.Medication{})
	})
}

// UpdateMedication merges patch into the medication at index i.
// An out-of-range index leaves the draft unchanged.
func (s *Store) UpdateMedication(ctx context.Context, i int, patch prescription.MedicationPatch) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		if i >= 0 && i < len(d.Medications) {
			patch.Apply(&d.Medications[i])
		}
	})
}

// RemoveMedication deletes the medication at index i
func (s *Store) RemoveMedication(ctx context.Context, i int) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		d.Medications = removeAt(d.Medications, i)
	})
}

// AddCustomField appends an empty custom field
func (s *Store) AddCustomField(ctx context.Context) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		d.CustomFields = append(d.CustomFields, prescription.CustomField{})
	})
}

// UpdateCustomField merges patch into the custom field at index i
func (s *Store) UpdateCustomField(ctx context.Context, i int, patch prescription.CustomFieldPatch) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		if i >= 0 && i < len(d.CustomFields) {
			patch.Apply(&d.CustomFields[i])
		}
	})
}

// RemoveCustomField deletes the custom field at index i
func (s *Store) RemoveCustomField(ctx context.Context, i int) prescription.Draft {
	return s.mutate(ctx, func(d *prescription.Draft) {
		d.CustomFields = removeAt(d.CustomFields, i)
	})
}

func removeAt[T any](items []T, i int) []T {
	if i < 0 || i >= len(items) {
		return items
	}
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func normalize(d *prescription.Draft) {
	if d.Step < 1 {
		d.Step = 1
	}
	if d.Medications == nil {
		d.Medications = []prescription.Medication{}
	}
	if d.LabTests == nil {
		d.LabTests = []string{}
	}
	if d.CustomFields == nil {
		d.CustomFields = []prescription.CustomField{}
	}
}
