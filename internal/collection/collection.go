// Package collection stores finalized prescriptions, in a storage slot for
// demo deployments or in Postgres with an event outbox.
package collection

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
)

// ErrNotFound is returned by Get for an unknown id
var ErrNotFound = errors.New("prescription not found")

// Collection is the set of finalized prescriptions, most recent first
type Collection interface {
	Append(ctx context.Context, p prescription.Prescription) error
	// Remove deletes the prescription with id; a missing id is a no-op
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (prescription.Prescription, error)
	List(ctx context.Context, f Filter) ([]prescription.Prescription, error)
}

// Filter narrows List results
type Filter struct {
	// Name matches a case-insensitive substring of the patient name
	Name string
}

// Match reports whether p passes the filter
func (f Filter) Match(p prescription.Prescription) bool {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.PatientDetails.Name), strings.ToLower(name))
}

// Stats are the dashboard counters
type Stats struct {
	Total     int `json:"total"`
	ThisMonth int `json:"thisMonth"`
	Completed int `json:"completed"`
}

// Summarize counts list; ThisMonth uses the calendar month of now in now's
// location
func Summarize(list []prescription.Prescription, now time.Time) Stats {
	s := Stats{Total: len(list)}
	y, m, _ := now.Date()
	for _, p := range list {
		cy, cm, _ := p.CreatedAt.In(now.Location()).Date()
		if cy == y && cm == m {
			s.ThisMonth++
		}
		if p.Status == prescription.StatusCompleted {
			s.Completed++
		}
	}
	return s
}
