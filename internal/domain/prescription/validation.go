package prescription

import (
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/go-rxpad/internal/catalog"
)

// Age bounds accepted for a patient
const (
	MinAge = 0
	MaxAge = 150
)

// FollowUpDateLayout is the only accepted follow-up date format
const FollowUpDateLayout = "2006-01-02"

// Violation is a single field-level validation failure
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found by a validator
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks a draft and returns its violations, if any
type Validator func(Draft) []Violation

// Check runs v and wraps any violations in a *ValidationError
func Check(v Validator, d Draft) error {
	if violations := v(d); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateDoctor requires the identifying doctor fields
func ValidateDoctor(d Draft) []Violation {
	var out []Violation
	doc := d.DoctorDetails
	if !present(doc.FullName) {
		out = append(out, Violation{Field: "doctorDetails.fullName", Message: "full name is required"})
	}
	if !present(doc.Specialty) {
		out = append(out, Violation{Field: "doctorDetails.specialty", Message: "specialty is required"})
	}
	if !present(doc.LicenseNumber) {
		out = append(out, Violation{Field: "doctorDetails.licenseNumber", Message: "license number is required"})
	}
	return out
}

// ValidatePatient requires a name and checks optional age and gender
func ValidatePatient(d Draft) []Violation {
	var out []Violation
	pat := d.PatientDetails
	if !present(pat.Name) {
		out = append(out, Violation{Field: "patientDetails.name", Message: "patient name is required"})
	}
	if pat.Age != nil && (*pat.Age < MinAge || *pat.Age > MaxAge) {
		out = append(out, Violation{
			Field:   "patientDetails.age",
			Message: fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge),
		})
	}
	if pat.Gender != "" && !catalog.IsGender(pat.Gender) {
		out = append(out, Violation{Field: "patientDetails.gender", Message: "unknown gender " + pat.Gender})
	}
	return out
}

// ValidateClinical requires at least one complete medication and a
// follow-up date that is either empty or a real calendar date
func ValidateClinical(d Draft) []Violation {
	var out []Violation
	if len(d.ValidMedications()) == 0 {
		out = append(out, Violation{
			Field:   "medications",
			Message: "at least one medication with name, dosage and frequency is required",
		})
	}
	if v := validateFollowUpDate(d.FollowUpDate); v != nil {
		out = append(out, *v)
	}
	return out
}

func validateFollowUpDate(value string) *Violation {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(FollowUpDateLayout, value); err != nil {
		return &Violation{Field: "followUpDate", Message: "follow-up date must be a valid YYYY-MM-DD date"}
	}
	return nil
}

// ValidateFinalize is applied before a draft becomes a prescription
func ValidateFinalize(d Draft) []Violation {
	var out []Violation
	if !present(d.PatientDetails.Name) {
		out = append(out, Violation{Field: "patientDetails.name", Message: "patient name is required"})
	}
	return append(out, ValidateClinical(d)...)
}
