// Package catalog holds the static option lists offered by the prescription forms.
package catalog

// Option is a selectable value with its display label
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Prescription status values
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Statuses lists every prescription status
var Statuses = []string{StatusDraft, StatusCompleted, StatusArchived}

// Genders lists the accepted patient gender values
var Genders = []Option{
	{Value: "male", Label: "Male"},
	{Value: "female", Label: "Female"},
	{Value: "other", Label: "Other"},
}

// Frequencies are the common dosing presets. Free text is accepted as well.
var Frequencies = []string{
	"Once daily",
	"Twice daily",
	"Three times daily",
	"Four times daily",
	"Every 4 hours",
	"Every 6 hours",
	"Every 8 hours",
	"Every 12 hours",
	"As needed",
	"Before meals",
	"After meals",
	"At bedtime",
}

// Durations are the common course-length presets
var Durations = []string{
	"3 days",
	"5 days",
	"7 days",
	"10 days",
	"14 days",
	"21 days",
	"1 month",
	"2 months",
	"3 months",
	"6 months",
	"Until review",
	"Continuous",
}

// Specialties lists the medical specialties offered for the doctor profile
var Specialties = []string{
	"General Physician",
	"Cardiologist",
	"Dermatologist",
	"Endocrinologist",
	"Gastroenterologist",
	"Neurologist",
	"Oncologist",
	"Orthopedic Surgeon",
	"Pediatrician",
	"Psychiatrist",
	"Pulmonologist",
	"Radiologist",
	"Surgeon",
	"Urologist",
	"ENT Specialist",
	"Ophthalmologist",
	"Gynecologist",
	"Dentist",
	"Other",
}

// IsGender reports whether v is one of the gender values
func IsGender(v string) bool {
	for _, g := range Genders {
		if g.Value == v {
			return true
		}
	}
	return false
}

// GenderLabel returns the display label for v, or v itself when unknown
func GenderLabel(v string) string {
	for _, g := range Genders {
		if g.Value == v {
			return g.Label
		}
	}
	return v
}

// IsKnownFrequency reports whether v is one of the frequency presets
func IsKnownFrequency(v string) bool {
	for _, f := range Frequencies {
		if f == v {
			return true
		}
	}
	return false
}

// Catalog bundles all option lists for clients
type Catalog struct {
	Specialties []string `json:"specialties"`
	Frequencies []string `json:"frequencies"`
	Durations   []string `json:"durations"`
	Genders     []Option `json:"genders"`
	Statuses    []string `json:"statuses"`
}

// All returns every option list
func All() Catalog {
	return Catalog{
		Specialties: Specialties,
		Frequencies: Frequencies,
		Durations:   Durations,
		Genders:     Genders,
		Statuses:    Statuses,
	}
}
