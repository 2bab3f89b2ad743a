package prescription

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventsTopic is the stream carrying prescription lifecycle events, keyed
// by prescription id
const EventsTopic = "prescription.events"

// EventType represents the type of domain event
type EventType string

const (
	EventPrescriptionFinalized EventType = "PrescriptionFinalized"
	EventPrescriptionDeleted   EventType = "PrescriptionDeleted"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Prescription",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithCorrelationID sets the correlation id, usually the request id
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// FinalizedData summarizes a finalized prescription
type FinalizedData struct {
	PrescriptionID  string    `json:"prescription_id"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	LicenseNumber   string    `json:"license_number,omitempty"`
	MedicationCount int       `json:"medication_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeletedData identifies a removed prescription
type DeletedData struct {
	PrescriptionID string    `json:"prescription_id"`
	DeletedAt      time.Time `json:"deleted_at"`
}

// FinalizedEvent builds the event emitted when p is persisted
func FinalizedEvent(p Prescription) (*Event, error) {
	return NewEvent(p.ID, EventPrescriptionFinalized, &FinalizedData{
		PrescriptionID:  p.ID,
		PatientName:     p.PatientDetails.Name,
		DoctorName:      p.DoctorDetails.FullName,
		LicenseNumber:   p.DoctorDetails.LicenseNumber,
		MedicationCount: len(p.Medications),
		CreatedAt:       p.CreatedAt,
	})
}

// DeletedEvent builds the event emitted when a prescription is removed
func DeletedEvent(id string, at time.Time) (*Event, error) {
	return NewEvent(id, EventPrescriptionDeleted, &DeletedData{
		PrescriptionID: id,
		DeletedAt:      at.UTC(),
	})
}
