// Package document turns drafts and finalized prescriptions into the
// render-ready Document and its canonical section layout.
package document

import (
	"time"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
)

// Document is everything a renderer needs to draw one prescription
type Document struct {
	prescription.Content
	IssuedAt  time.Time `json:"issuedAt"`
	Watermark string    `json:"watermark,omitempty"`
}

// Build converts a draft into a Document. Invalid medications are dropped in
// order and nil lists become empty; nothing else is altered.
func Build(d prescription.Draft, issuedAt time.Time) Document {
	c := d.Content.Clone()
	c.Medications = d.ValidMedications()
	if c.LabTests == nil {
		c.LabTests = []string{}
	}
	if c.CustomFields == nil {
		c.CustomFields = []prescription.CustomField{}
	}
	return Document{Content: c, IssuedAt: issuedAt}
}

// FromPrescription wraps a finalized prescription, issued at its creation time
func FromPrescription(p prescription.Prescription) Document {
	return Build(prescription.Draft{Content: p.Content}, p.CreatedAt)
}

// Normalize applies Build's rules to a Document received from outside
func Normalize(doc Document) Document {
	out := Build(prescription.Draft{Content: doc.Content}, doc.IssuedAt)
	out.Watermark = doc.Watermark
	return out
}

// SampleWatermark marks documents that are not issued prescriptions
const SampleWatermark = "SAMPLE"

// Sample returns the fixed demonstration prescription, watermarked SAMPLE,
// with a follow-up 30 days after now
func Sample(now time.Time) Document {
	age := 45
	return Document{
		IssuedAt:  now,
		Watermark: SampleWatermark,
		Content: prescription.Content{
			DoctorDetails: prescription.DoctorDetails{
				FullName:           "Dr. Sarah Johnson",
				Qualification:      "MD",
				Specialty:          "Internal Medicine",
				LicenseNumber:      "MED-123456",
				ClinicHospitalName: "City Medical Center",
				Phone:              "+1 (555) 123-4567",
				Address:            "123 Medical Plaza, Suite 200, New York, NY 10001",
			},
			PatientDetails: prescription.PatientDetails{
				Name:    "John Smith",
				Age:     &age,
				Gender:  "male",
				Contact: "+1 (555) 987-6543",
				Address: "456 Oak Street, Brooklyn, NY 11201",
			},
			Diagnosis: "Hypertension (Stage 1), Type 2 Diabetes Mellitus",
			Symptoms:  "Elevated blood pressure, increased thirst, frequent urination",
			LabTests:  []string{"CBC", "Lipid Panel", "HbA1c", "Fasting Blood Sugar"},
			Medications: []prescription.Medication{
				{MedicationName: "Lisinopril 10mg", Dosage: "1 tablet", Frequency: "Once daily", Duration: "30 days", Instructions: "Take in the morning with water"},
				{MedicationName: "Metformin 500mg", Dosage: "1 tablet", Frequency: "Twice daily", Duration: "30 days", Instructions: "Take with meals"},
				{MedicationName: "Aspirin 81mg", Dosage: "1 tablet", Frequency: "Once daily", Duration: "30 days", Instructions: "Take after breakfast"},
			},
			AdditionalNotes: "Monitor blood pressure daily\n" +
				"Check blood sugar levels as directed\n" +
				"Follow low-sodium, diabetic-friendly diet\n" +
				"Regular exercise (30 minutes daily)\n" +
				"Avoid alcohol and smoking",
			FollowUpDate: now.AddDate(0, 0, 30).Format(DateLayout),
			CustomFields: []prescription.CustomField{},
		},
	}
}
