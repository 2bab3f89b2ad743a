package wizard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/draft"
	"github.com/drfirst/go-rxpad/internal/storage"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// scenarioContext holds state for a single scenario
type scenarioContext struct {
	ctx    context.Context
	drafts *draft.Store
	coll   *collection.SlotCollection
	wiz    *Controller

	lastErr error
	result  prescription.Prescription
}

func InitializeScenario(sc *godog.ScenarioContext) {
	s := &scenarioContext{}

	sc.Step(`^a fresh prescription draft$`, s.aFreshDraft)
	sc.Step(`^the doctor is "([^"]*)", a "([^"]*)" with license "([^"]*)"$`, s.theDoctorIs)
	sc.Step(`^the patient is named "([^"]*)"$`, s.thePatientIsNamed)
	sc.Step(`^the draft has a medication "([^"]*)" dosed "([^"]*)" taken "([^"]*)"$`, s.theDraftHasAMedication)
	sc.Step(`^the draft is on step (\d+)$`, s.theDraftIsOnStep)
	sc.Step(`^I go to the next step$`, s.iGoToTheNextStep)
	sc.Step(`^I go back$`, s.iGoBack)
	sc.Step(`^I finalize the prescription$`, s.iFinalize)
	sc.Step(`^the wizard is on step (\d+)$`, s.theWizardIsOnStep)
	sc.Step(`^validation fails on "([^"]*)"$`, s.validationFailsOn)
	sc.Step(`^the prescription has (\d+) medications?$`, s.thePrescriptionHasMedications)
	sc.Step(`^the prescription has an id and a creation time$`, s.thePrescriptionHasIdentity)
	sc.Step(`^the collection holds (\d+) prescriptions?$`, s.theCollectionHolds)
	sc.Step(`^the draft is empty$`, s.theDraftIsEmpty)
}

func (s *scenarioContext) aFreshDraft() error {
	s.ctx = context.Background()
	slot := storage.NewMemorySlot()
	s.drafts = draft.NewStore(slot, nil)
	s.coll = collection.NewSlotCollection(slot, nil)
	s.wiz = New(s.drafts, s.coll)
	s.lastErr = nil
	_, err := s.wiz.Start(s.ctx)
	return err
}

func (s *scenarioContext) theDoctorIs(name, specialty, license string) error {
	s.drafts.UpdateDoctorDetails(s.ctx, prescription.DoctorDetailsPatch{
		FullName: &name, Specialty: &specialty, LicenseNumber: &license,
	})
	return nil
}

func (s *scenarioContext) thePatientIsNamed(name string) error {
	s.drafts.UpdatePatientDetails(s.ctx, prescription.PatientDetailsPatch{Name: &name})
	return nil
}

func (s *scenarioContext) theDraftHasAMedication(name, dosage, frequency string) error {
	d := s.drafts.AddMedication(s.ctx)
	s.drafts.UpdateMedication(s.ctx, len(d.Medications)-1, prescription.MedicationPatch{
		MedicationName: &name, Dosage: &dosage, Frequency: &frequency,
	})
	return nil
}

func (s *scenarioContext) theDraftIsOnStep(n int) error {
	s.drafts.SetStep(s.ctx, n)
	return nil
}

func (s *scenarioContext) iGoToTheNextStep() error {
	_, s.lastErr = s.wiz.GoNext(s.ctx)
	return nil
}

func (s *scenarioContext) iGoBack() error {
	_, err := s.wiz.GoBack(s.ctx)
	return err
}

func (s *scenarioContext) iFinalize() error {
	s.result, s.lastErr = s.wiz.Finalize(s.ctx)
	return nil
}

func (s *scenarioContext) theWizardIsOnStep(n int) error {
	if got := s.wiz.State().Step; int(got) != n {
		return fmt.Errorf("expected step %d, got %d", n, got)
	}
	return nil
}

func (s *scenarioContext) validationFailsOn(field string) error {
	var verr *prescription.ValidationError
	if !errors.As(s.lastErr, &verr) {
		return fmt.Errorf("expected a validation error, got %v", s.lastErr)
	}
	for _, v := range verr.Violations {
		if v.Field == field {
			return nil
		}
	}
	return fmt.Errorf("no violation on %s in %v", field, verr)
}

func (s *scenarioContext) thePrescriptionHasMedications(n int) error {
	if s.lastErr != nil {
		return fmt.Errorf("finalize failed: %w", s.lastErr)
	}
	if got := len(s.result.Medications); got != n {
		return fmt.Errorf("expected %d medications, got %d", n, got)
	}
	return nil
}

func (s *scenarioContext) thePrescriptionHasIdentity() error {
	if s.result.ID == "" {
		return errors.New("prescription has no id")
	}
	if s.result.CreatedAt.IsZero() || time.Since(s.result.CreatedAt) > time.Minute {
		return fmt.Errorf("unexpected creation time %v", s.result.CreatedAt)
	}
	return nil
}

func (s *scenarioContext) theCollectionHolds(n int) error {
	list, err := s.coll.List(s.ctx, collection.Filter{})
	if err != nil {
		return err
	}
	if len(list) != n {
		return fmt.Errorf("expected %d prescriptions, got %d", n, len(list))
	}
	return nil
}

func (s *scenarioContext) theDraftIsEmpty() error {
	d := s.drafts.Current()
	if d.Step != 1 || d.PatientDetails.Name != "" || len(d.Medications) != 0 {
		return fmt.Errorf("draft not cleared: %+v", d)
	}
	return nil
}
