// Package prescription implements the prescription data model, its
// per-step validators and lifecycle events.
package prescription

import (
	"time"

	"github.com/drfirst/go-rxpad/internal/catalog"
)

// Status represents prescription status
type Status string

const (
	StatusDraft     Status = catalog.StatusDraft
	StatusCompleted Status = catalog.StatusCompleted
	StatusArchived  Status = catalog.StatusArchived
)

// Prescription is a finalized, immutable prescription record
type Prescription struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
	Content
}

// New finalizes content into a completed prescription. Invalid medications
// are dropped and nil slices normalized.
func New(id string, createdAt time.Time, c Content) Prescription {
	content := c.Clone()
	content.Medications = c.ValidMedications()
	if content.LabTests == nil {
		content.LabTests = []string{}
	}
	if content.CustomFields == nil {
		content.CustomFields = []CustomField{}
	}
	return Prescription{
		ID:        id,
		CreatedAt: createdAt.UTC(),
		Status:    StatusCompleted,
		Content:   content,
	}
}

// Clone returns a deep copy
func (p Prescription) Clone() Prescription {
	out := p
	out.Content = p.Content.Clone()
	return out
}
