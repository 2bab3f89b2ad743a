package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
)

var issued = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func TestBuildFiltersMedicationsInOrder(t *testing.T) {
	d := prescription.NewDraft()
	d.Medications = []prescription.Medication{
		{MedicationName: "Amoxicillin", Dosage: "500mg", Frequency: "Three times daily"},
		{MedicationName: "Ibuprofen", Dosage: "200mg"},
		{MedicationName: "Cetirizine", Dosage: "10mg", Frequency: "Once daily"},
	}
	d.LabTests = nil

	doc := Build(d, issued)
	require.Len(t, doc.Medications, 2)
	require.Equal(t, "Amoxicillin", doc.Medications[0].MedicationName)
	require.Equal(t, "Cetirizine", doc.Medications[1].MedicationName)
	require.NotNil(t, doc.LabTests)
	require.NotNil(t, doc.CustomFields)
	require.Equal(t, issued, doc.IssuedAt)
	require.Len(t, d.Medications, 3)
}

func TestBuildKeepsTextUntrimmed(t *testing.T) {
	d := prescription.NewDraft()
	d.Diagnosis = "  Flu  "
	d.FollowUpDate = "2024-02-01"
	doc := Build(d, issued)
	require.Equal(t, "  Flu  ", doc.Diagnosis)
	require.Equal(t, "2024-02-01", doc.FollowUpDate)
}

func TestFromPrescriptionUsesCreatedAt(t *testing.T) {
	p := prescription.New("rx-1", issued, prescription.NewDraft().Content)
	require.Equal(t, issued, FromPrescription(p).IssuedAt)
}

func TestSampleLayout(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lines := NewLayout(Sample(now)).Lines()

	require.Equal(t, []string{
		"SAMPLE",
		"City Medical Center",
		"Dr. Sarah Johnson, MD",
		"Specialty: Internal Medicine",
		"License: MED-123456",
		"Phone: +1 (555) 123-4567",
		"123 Medical Plaza, Suite 200, New York, NY 10001",
		"Patient Information",
		"Name: John Smith",
		"Age: 45 years",
		"Gender: Male",
		"Contact: +1 (555) 987-6543",
		"Address: 456 Oak Street, Brooklyn, NY 11201",
		"Clinical Information",
		"Diagnosis: Hypertension (Stage 1), Type 2 Diabetes Mellitus",
		"Symptoms: Elevated blood pressure, increased thirst, frequent urination",
		"Lab Tests: CBC, Lipid Panel, HbA1c, Fasting Blood Sugar",
		"Rx",
		"Prescription",
		"1. Lisinopril 10mg",
		"Dosage: 1 tablet | Frequency: Once daily | Duration: 30 days",
		"Instructions: Take in the morning with water",
		"2. Metformin 500mg",
		"Dosage: 1 tablet | Frequency: Twice daily | Duration: 30 days",
		"Instructions: Take with meals",
		"3. Aspirin 81mg",
		"Dosage: 1 tablet | Frequency: Once daily | Duration: 30 days",
		"Instructions: Take after breakfast",
		"Additional Notes",
		"• Monitor blood pressure daily",
		"• Check blood sugar levels as directed",
		"• Follow low-sodium, diabetic-friendly diet",
		"• Regular exercise (30 minutes daily)",
		"• Avoid alcohol and smoking",
		"Follow-up Date: Mar 31, 2024",
		"Doctor's Signature",
		"Dr. Sarah Johnson, MD",
		"Date: Mar 01, 2024",
	}, lines)
}

func TestLayoutVisibilityRules(t *testing.T) {
	d := prescription.NewDraft()
	d.PatientDetails.Name = "Jane Doe"
	d.Medications = []prescription.Medication{{MedicationName: "Amoxicillin", Dosage: "500mg", Frequency: "Three times daily"}}
	d.AdditionalNotes = "\n  \n"

	l := NewLayout(Build(d, issued))
	kinds := make([]SectionKind, 0, len(l.Sections))
	for _, s := range l.Sections {
		kinds = append(kinds, s.Kind)
	}
	require.Equal(t, []SectionKind{SectionHeader, SectionPatient, SectionPrescription, SectionFooter}, kinds)
	require.Equal(t, []string{
		"Patient Information",
		"Name: Jane Doe",
		"Rx",
		"Prescription",
		"1. Amoxicillin",
		"Dosage: 500mg | Frequency: Three times daily",
		"Doctor's Signature",
		"Date: Jan 15, 2024",
	}, l.Lines())
}

func TestLayoutCustomFieldsAndLabTests(t *testing.T) {
	d := prescription.NewDraft()
	d.LabTests = []string{"CBC", "", "CBC"}
	d.CustomFields = []prescription.CustomField{{Label: "Allergies", Value: "Penicillin"}, {}, {Value: "Bring reports"}}

	l := NewLayout(Build(d, issued))
	clinical := l.Sections[2]
	require.Equal(t, SectionClinical, clinical.Kind)
	texts := make([]string, 0, len(clinical.Nodes))
	for _, n := range clinical.Nodes {
		texts = append(texts, n.Text())
	}
	require.Equal(t, []string{"Lab Tests: CBC, CBC", "Allergies: Penicillin", "Bring reports"}, texts)
}

func TestFormatDate(t *testing.T) {
	require.Equal(t, "Feb 01, 2024", FormatDate("2024-02-01"))
	require.Equal(t, "next week", FormatDate("next week"))
}
