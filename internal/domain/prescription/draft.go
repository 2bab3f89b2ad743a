package prescription

import "strings"

// DoctorDetails identifies the issuing doctor
type DoctorDetails struct {
	FullName           string `json:"fullName,omitempty"`
	Qualification      string `json:"qualification,omitempty"`
	Specialty          string `json:"specialty,omitempty"`
	LicenseNumber      string `json:"licenseNumber,omitempty"`
	ClinicHospitalName string `json:"clinicHospitalName,omitempty"`
	Address            string `json:"address,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
}

// PatientDetails identifies the patient
type PatientDetails struct {
	Name    string `json:"name,omitempty"`
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

// Medication is one Rx line
type Medication struct {
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions"`
}

// Valid reports whether name, dosage and frequency are all present
func (m Medication) Valid() bool {
	return present(m.MedicationName) && present(m.Dosage) && present(m.Frequency)
}

// CustomField is a free-form supplemental row
type CustomField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Content is everything a prescription carries apart from its lifecycle fields
type Content struct {
	DoctorDetails   DoctorDetails  `json:"doctorDetails"`
	PatientDetails  PatientDetails `json:"patientDetails"`
	Medications     []Medication   `json:"medications"`
	Diagnosis       string         `json:"diagnosis"`
	Symptoms        string         `json:"symptoms"`
	LabTests        []string       `json:"labTests"`
	FollowUpDate    string         `json:"followUpDate,omitempty"` // YYYY-MM-DD
	AdditionalNotes string         `json:"additionalNotes"`
	CustomFields    []CustomField  `json:"customFields"`
}

// ValidMedications returns the medications that pass Medication.Valid, in order
func (c Content) ValidMedications() []Medication {
	valid := make([]Medication, 0, len(c.Medications))
	for _, m := range c.Medications {
		if m.Valid() {
			valid = append(valid, m)
		}
	}
	return valid
}

// Clone returns a deep copy
func (c Content) Clone() Content {
	out := c
	if c.PatientDetails.Age != nil {
		age := *c.PatientDetails.Age
		out.PatientDetails.Age = &age
	}
	out.Medications = cloneSlice(c.Medications)
	out.LabTests = cloneSlice(c.LabTests)
	out.CustomFields = cloneSlice(c.CustomFields)
	return out
}

// cloneSlice copies s, keeping nil and empty distinct
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// Draft is the single in-progress prescription
type Draft struct {
	Step int `json:"step"`
	Content
}

// NewDraft returns an empty draft positioned on the first step
func NewDraft() Draft {
	return Draft{
		Step: 1,
		Content: Content{
			Medications:  []Medication{},
			LabTests:     []string{},
			CustomFields: []CustomField{},
		},
	}
}

// Clone returns a deep copy
func (d Draft) Clone() Draft {
	return Draft{Step: d.Step, Content: d.Content.Clone()}
}

// DoctorDetailsPatch carries the doctor fields to overwrite; nil leaves a field unchanged
type DoctorDetailsPatch struct {
	FullName           *string `json:"fullName,omitempty"`
	Qualification      *string `json:"qualification,omitempty"`
	Specialty          *string `json:"specialty,omitempty"`
	LicenseNumber      *string `json:"licenseNumber,omitempty"`
	ClinicHospitalName *string `json:"clinicHospitalName,omitempty"`
	Address            *string `json:"address,omitempty"`
	Phone              *string `json:"phone,omitempty"`
	Email              *string `json:"email,omitempty"`
}

// Apply merges the patch into d key by key
func (p DoctorDetailsPatch) Apply(d *DoctorDetails) {
	set(&d.FullName, p.FullName)
	set(&d.Qualification, p.Qualification)
	set(&d.Specialty, p.Specialty)
	set(&d.LicenseNumber, p.LicenseNumber)
	set(&d.ClinicHospitalName, p.ClinicHospitalName)
	set(&d.Address, p.Address)
	set(&d.Phone, p.Phone)
	set(&d.Email, p.Email)
}

// PatientDetailsPatch carries the patient fields to overwrite.
// ClearAge removes a previously entered age.
type PatientDetailsPatch struct {
	Name     *string `json:"name,omitempty"`
	Age      *int    `json:"age,omitempty"`
	ClearAge bool    `json:"clearAge,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Contact  *string `json:"contact,omitempty"`
	Address  *string `json:"address,omitempty"`
}

// Apply merges the patch into p key by key
func (p PatientDetailsPatch) Apply(d *PatientDetails) {
	set(&d.Name, p.Name)
	switch {
	case p.ClearAge:
		d.Age = nil
	case p.Age != nil:
		age := *p.Age
		d.Age = &age
	}
	set(&d.Gender, p.Gender)
	set(&d.Contact, p.Contact)
	set(&d.Address, p.Address)
}

// MedicationPatch carries the medication fields to overwrite
type MedicationPatch struct {
	MedicationName *string `json:"medicationName,omitempty"`
	Dosage         *string `json:"dosage,omitempty"`
	Frequency      *string `json:"frequency,omitempty"`
	Duration       *string `json:"duration,omitempty"`
	Instructions   *string `json:"instructions,omitempty"`
}

// Apply merges the patch into m key by key
func (p MedicationPatch) Apply(m *Medication) {
	set(&m.MedicationName, p.MedicationName)
	set(&m.Dosage, p.Dosage)
	set(&m.Frequency, p.Frequency)
	set(&m.Duration, p.Duration)
	set(&m.Instructions, p.Instructions)
}

// CustomFieldPatch carries the custom field parts to overwrite
type CustomFieldPatch struct {
	Label *string `json:"label,omitempty"`
	Value *string `json:"value,omitempty"`
}

// Apply merges the patch into f
func (p CustomFieldPatch) Apply(f *CustomField) {
	set(&f.Label, p.Label)
	set(&f.Value, p.Value)
}

// ContentPatch carries top-level clinical content to overwrite.
// LabTests replaces the whole list when non-nil.
type ContentPatch struct {
	Diagnosis       *string   `json:"diagnosis,omitempty"`
	Symptoms        *string   `json:"symptoms,omitempty"`
	LabTests        *[]string `json:"labTests,omitempty"`
	FollowUpDate    *string   `json:"followUpDate,omitempty"`
	AdditionalNotes *string   `json:"additionalNotes,omitempty"`
}

// Apply merges the patch into c
func (p ContentPatch) Apply(c *Content) {
	set(&c.Diagnosis, p.Diagnosis)
	set(&c.Symptoms, p.Symptoms)
	if p.LabTests != nil {
		c.LabTests = append([]string{}, (*p.LabTests)...)
	}
	set(&c.FollowUpDate, p.FollowUpDate)
	set(&c.AdditionalNotes, p.AdditionalNotes)
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
