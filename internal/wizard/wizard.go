// Package wizard drives the step-by-step prescription flow: per-step
// validation, navigation, and finalization into the collection.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/draft"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/profile"
)

// ErrFinalized is returned by operations other than Restart and State once
// the draft has been finalized
var ErrFinalized = errors.New("wizard: prescription already finalized")

// Step is a 1-indexed wizard step
type Step int

const (
	StepDoctor   Step = 1
	StepPatient  Step = 2
	StepClinical Step = 3
	// StepReview is only present with WithReviewStep
	StepReview Step = 4
)

func (s Step) String() string {
	switch s {
	case StepDoctor:
		return "doctor"
	case StepPatient:
		return "patient"
	case StepClinical:
		return "clinical"
	case StepReview:
		return "review"
	default:
		return fmt.Sprintf("step-%d", int(s))
	}
}

// Title is the heading shown for the step
func (s Step) Title() string {
	switch s {
	case StepDoctor:
		return "Doctor Details"
	case StepPatient:
		return "Patient Details"
	case StepClinical:
		return "Prescription"
	case StepReview:
		return "Review"
	default:
		return ""
	}
}

func (s Step) validator() prescription.Validator {
	switch s {
	case StepDoctor:
		return prescription.ValidateDoctor
	case StepPatient:
		return prescription.ValidatePatient
	case StepClinical:
		return prescription.ValidateClinical
	default:
		return prescription.ValidateFinalize
	}
}

// State is a snapshot of the wizard
type State struct {
	Step      Step                       `json:"step"`
	Title     string                     `json:"title"`
	LastStep  Step                       `json:"lastStep"`
	Finalized bool                       `json:"finalized"`
	Draft     prescription.Draft         `json:"draft"`
	Result    *prescription.Prescription `json:"result,omitempty"`
}

// Option configures a Controller
type Option func(*Controller)

// WithReviewStep adds a read-only review step after the clinical step
func WithReviewStep() Option {
	return func(c *Controller) { c.review = true }
}

// WithProfile prefills empty doctor fields from the saved profile on Start
// and Restart
func WithProfile(p *profile.Store) Option {
	return func(c *Controller) { c.profiles = p }
}

// WithMetrics records transitions, validation failures and finalizations
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock overrides the finalization clock
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDs overrides prescription id generation
func WithIDs(next func() (string, error)) Option {
	return func(c *Controller) { c.nextID = next }
}

// Controller owns the navigation state around a draft store. Operations
// are serialized.
type Controller struct {
	mu     sync.Mutex
	drafts *draft.Store
	coll   collection.Collection
	result *prescription.Prescription

	review   bool
	profiles *profile.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	nextID   func() (string, error)
}

// New creates a controller. Call Start to resume the stored draft.
func New(drafts *draft.Store, coll collection.Collection, opts ...Option) *Controller {
	c := &Controller{
		drafts: drafts,
		coll:   coll,
		logger: zap.NewNop(),
		now:    time.Now,
		nextID: newID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// newID returns a time-ordered UUIDv7
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// LastStep is the final step of the configured flow
func (c *Controller) LastStep() Step {
	if c.review {
		return StepReview
	}
	return StepClinical
}

// Steps lists the configured steps in order
func (c *Controller) Steps() []Step {
	steps := []Step{StepDoctor, StepPatient, StepClinical}
	if c.review {
		steps = append(steps, StepReview)
	}
	return steps
}

func (c *Controller) clamp(n int) Step {
	switch {
	case n < int(StepDoctor):
		return StepDoctor
	case n > int(c.LastStep()):
		return c.LastStep()
	default:
		return Step(n)
	}
}

// Start resumes the stored draft, clamps its step into range and applies
// profile autofill
func (c *Controller) Start(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil {
		return c.state(), ErrFinalized
	}

	d := c.drafts.Load(ctx)
	if step := c.clamp(d.Step); int(step) != d.Step {
		c.drafts.SetStep(ctx, int(step))
	}
	c.autofill(ctx)
	return c.state(), nil
}

func (c *Controller) autofill(ctx context.Context) {
	if c.profiles == nil {
		return
	}
	p, err := c.profiles.Get(ctx)
	if err != nil {
		c.logger.Warn("profile unavailable, skipping autofill", zap.Error(err))
		return
	}
	if patch, ok := p.Patch(c.drafts.Current().DoctorDetails); ok {
		c.drafts.UpdateDoctorDetails(ctx, patch)
	}
}

// GoNext validates the active step. On success it advances one step, or
// stays put on the last step.
func (c *Controller) GoNext(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.drafts.Current()
	step := c.clamp(d.Step)
	if c.result != nil {
		return step, ErrFinalized
	}

	if err := prescription.Check(step.validator(), d); err != nil {
		c.metrics.ValidationFailed(step.String())
		return step, err
	}
	if step == c.LastStep() {
		return step, nil
	}

	next := step + 1
	c.drafts.SetStep(ctx, int(next))
	c.metrics.StepChanged("next")
	return next, nil
}

// GoBack moves to the previous step without validating, floored at the
// first step
func (c *Controller) GoBack(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.clamp(c.drafts.Current().Step)
	if c.result != nil {
		return step, ErrFinalized
	}
	if step == StepDoctor {
		return step, nil
	}

	prev := step - 1
	c.drafts.SetStep(ctx, int(prev))
	c.metrics.StepChanged("back")
	return prev, nil
}

// Finalize validates the draft regardless of the active step, appends the
// resulting prescription to the collection and clears the draft. A failed
// append keeps the draft.
func (c *Controller) Finalize(ctx context.Context) (prescription.Prescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil {
		return prescription.Prescription{}, ErrFinalized
	}

	d := c.drafts.Current()
	if err := prescription.Check(prescription.ValidateFinalize, d); err != nil {
		c.metrics.ValidationFailed("finalize")
		return prescription.Prescription{}, err
	}

	id, err := c.nextID()
	if err != nil {
		return prescription.Prescription{}, fmt.Errorf("generate id: %w", err)
	}
	doc := document.Build(d, c.now())
	p := prescription.New(id, doc.IssuedAt, doc.Content)

	if err := c.coll.Append(ctx, p); err != nil {
		c.logger.Error("finalize failed, draft kept", zap.String("prescription_id", id), zap.Error(err))
		return prescription.Prescription{}, fmt.Errorf("store prescription: %w", err)
	}

	c.drafts.Clear(ctx)
	c.result = &p
	c.metrics.Finalized()
	c.logger.Info("prescription finalized",
		zap.String("prescription_id", p.ID),
		zap.Int("medications", len(p.Medications)))
	return p.Clone(), nil
}

// Edit applies a draft mutation unless the wizard is finalized
func (c *Controller) Edit(fn func(s *draft.Store) prescription.Draft) (prescription.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil {
		return prescription.Draft{}, ErrFinalized
	}
	return fn(c.drafts), nil
}

// SaveDraft persists the current draft without validating it
func (c *Controller) SaveDraft(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil {
		return ErrFinalized
	}
	c.drafts.Persist(ctx)
	return nil
}

// Restart leaves the finalized state, or discards the current draft, and
// begins a fresh one
func (c *Controller) Restart(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
	c.drafts.Reset(ctx)
	c.autofill(ctx)
	return c.state()
}

// State returns a snapshot of the wizard
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) state() State {
	d := c.drafts.Current()
	step := c.clamp(d.Step)
	s := State{
		Step:      step,
		Title:     step.Title(),
		LastStep:  c.LastStep(),
		Finalized: c.result != nil,
		Draft:     d,
	}
	if c.result != nil {
		p := c.result.Clone()
		s.Result = &p
	}
	return s
}
