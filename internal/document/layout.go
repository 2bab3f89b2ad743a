package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/go-rxpad/internal/catalog"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
)

// DateLayout is the wire format of the follow-up date
const DateLayout = prescription.FollowUpDateLayout

// DisplayDateLayout is how dates appear on the printed prescription
const DisplayDateLayout = "Jan 02, 2006"

// SectionKind identifies a layout section
type SectionKind string

const (
	SectionHeader       SectionKind = "header"
	SectionPatient      SectionKind = "patient"
	SectionClinical     SectionKind = "clinical"
	SectionPrescription SectionKind = "prescription"
	SectionNotes        SectionKind = "notes"
	SectionFooter       SectionKind = "footer"
)

// NodeKind identifies how a node is drawn
type NodeKind string

const (
	NodeDoctorName     NodeKind = "doctor-name"
	NodeInfo           NodeKind = "info"
	NodeField          NodeKind = "field"
	NodeMedication     NodeKind = "medication"
	NodeDosage         NodeKind = "dosage"
	NodeInstructions   NodeKind = "instructions"
	NodeBullet         NodeKind = "bullet"
	NodeSignatureLabel NodeKind = "signature-label"
	NodeSignatureName  NodeKind = "signature-name"
	NodeDate           NodeKind = "date"
)

// Node is one line of printed text
type Node struct {
	Kind      NodeKind `json:"kind"`
	Label     string   `json:"label,omitempty"`
	Value     string   `json:"value"`
	FullWidth bool     `json:"fullWidth,omitempty"`
	// Group is the 1-based medication number for prescription nodes
	Group int `json:"group,omitempty"`
}

// Text is the node as it reads on the page
func (n Node) Text() string {
	switch {
	case n.Kind == NodeBullet:
		return "• " + n.Value
	case n.Label != "":
		return n.Label + ": " + n.Value
	default:
		return n.Value
	}
}

// Section is a titled block of nodes
type Section struct {
	Kind  SectionKind `json:"kind"`
	Badge string      `json:"badge,omitempty"`
	Title string      `json:"title,omitempty"`
	Nodes []Node      `json:"nodes"`
}

// Layout is the ordered, visibility-resolved content shared by all renderers
type Layout struct {
	Watermark string    `json:"watermark,omitempty"`
	Sections  []Section `json:"sections"`
}

// Lines returns the text of the layout in reading order
func (l Layout) Lines() []string {
	var lines []string
	if l.Watermark != "" {
		lines = append(lines, l.Watermark)
	}
	for _, s := range l.Sections {
		if s.Badge != "" {
			lines = append(lines, s.Badge)
		}
		if s.Title != "" {
			lines = append(lines, s.Title)
		}
		for _, n := range s.Nodes {
			lines = append(lines, n.Text())
		}
	}
	return lines
}

// DoctorDisplayName joins the doctor's name and qualification
func DoctorDisplayName(doc Document) string {
	d := doc.DoctorDetails
	if d.FullName == "" {
		return ""
	}
	if d.Qualification == "" {
		return d.FullName
	}
	return d.FullName + ", " + d.Qualification
}

// FormatDate renders a YYYY-MM-DD date for display, passing through values
// that do not parse
func FormatDate(value string) string {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return value
	}
	return t.Format(DisplayDateLayout)
}

// NewLayout resolves doc into sections in fixed order: header, patient,
// clinical, prescription, notes, footer. Empty clinical and notes sections
// are omitted.
func NewLayout(doc Document) Layout {
	l := Layout{Watermark: doc.Watermark}
	l.Sections = append(l.Sections, headerSection(doc), patientSection(doc))
	if s, ok := clinicalSection(doc); ok {
		l.Sections = append(l.Sections, s)
	}
	l.Sections = append(l.Sections, prescriptionSection(doc))
	if s, ok := notesSection(doc); ok {
		l.Sections = append(l.Sections, s)
	}
	l.Sections = append(l.Sections, footerSection(doc))
	return l
}

func headerSection(doc Document) Section {
	d := doc.DoctorDetails
	s := Section{Kind: SectionHeader, Title: d.ClinicHospitalName, Nodes: []Node{}}
	if name := DoctorDisplayName(doc); name != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeDoctorName, Value: name})
	}
	s.Nodes = appendField(s.Nodes, NodeInfo, "Specialty", d.Specialty)
	s.Nodes = appendField(s.Nodes, NodeInfo, "License", d.LicenseNumber)
	s.Nodes = appendField(s.Nodes, NodeInfo, "Phone", d.Phone)
	s.Nodes = appendField(s.Nodes, NodeInfo, "Email", d.Email)
	if d.Address != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeInfo, Value: d.Address})
	}
	return s
}

func patientSection(doc Document) Section {
	p := doc.PatientDetails
	s := Section{Kind: SectionPatient, Title: "Patient Information"}
	s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: "Name", Value: p.Name})
	if p.Age != nil {
		s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: "Age", Value: fmt.Sprintf("%d years", *p.Age)})
	}
	if p.Gender != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: "Gender", Value: catalog.GenderLabel(p.Gender)})
	}
	s.Nodes = appendField(s.Nodes, NodeField, "Contact", p.Contact)
	if p.Address != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: "Address", Value: p.Address, FullWidth: true})
	}
	return s
}

func clinicalSection(doc Document) (Section, bool) {
	s := Section{Kind: SectionClinical, Title: "Clinical Information"}
	s.Nodes = appendField(s.Nodes, NodeField, "Diagnosis", doc.Diagnosis)
	s.Nodes = appendField(s.Nodes, NodeField, "Symptoms", doc.Symptoms)

	tests := make([]string, 0, len(doc.LabTests))
	for _, t := range doc.LabTests {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	s.Nodes = appendField(s.Nodes, NodeField, "Lab Tests", strings.Join(tests, ", "))

	for _, f := range doc.CustomFields {
		if f.Label == "" && f.Value == "" {
			continue
		}
		s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: f.Label, Value: f.Value})
	}
	return s, len(s.Nodes) > 0
}

func prescriptionSection(doc Document) Section {
	s := Section{Kind: SectionPrescription, Badge: "Rx", Title: "Prescription", Nodes: []Node{}}
	for i, m := range doc.Medications {
		n := i + 1
		s.Nodes = append(s.Nodes, Node{Kind: NodeMedication, Value: fmt.Sprintf("%d. %s", n, m.MedicationName), Group: n})

		details := "Dosage: " + m.Dosage + " | Frequency: " + m.Frequency
		if m.Duration != "" {
			details += " | Duration: " + m.Duration
		}
		s.Nodes = append(s.Nodes, Node{Kind: NodeDosage, Value: details, Group: n})

		if m.Instructions != "" {
			s.Nodes = append(s.Nodes, Node{Kind: NodeInstructions, Label: "Instructions", Value: m.Instructions, Group: n})
		}
	}
	return s
}

func notesSection(doc Document) (Section, bool) {
	s := Section{Kind: SectionNotes, Title: "Additional Notes"}
	for _, line := range strings.Split(doc.AdditionalNotes, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s.Nodes = append(s.Nodes, Node{Kind: NodeBullet, Value: line})
		}
	}
	return s, len(s.Nodes) > 0
}

func footerSection(doc Document) Section {
	s := Section{Kind: SectionFooter}
	if doc.FollowUpDate != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeField, Label: "Follow-up Date", Value: FormatDate(doc.FollowUpDate)})
	}
	s.Nodes = append(s.Nodes, Node{Kind: NodeSignatureLabel, Value: "Doctor's Signature"})
	if name := DoctorDisplayName(doc); name != "" {
		s.Nodes = append(s.Nodes, Node{Kind: NodeSignatureName, Value: name})
	}
	s.Nodes = append(s.Nodes, Node{Kind: NodeDate, Label: "Date", Value: doc.IssuedAt.Format(DisplayDateLayout)})
	return s
}

func appendField(nodes []Node, kind NodeKind, label, value string) []Node {
	if value == "" {
		return nodes
	}
	return append(nodes, Node{Kind: kind, Label: label, Value: value})
}
