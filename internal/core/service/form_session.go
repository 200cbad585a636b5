package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/port"
)

// FormSession is the state machine of one order-creation flow. It owns its
// draft exclusively; callers mutate the draft only through Apply.
//
//	job_details -> pickup -> [delivery] -> item_details -> submitting -> submitted
//	any editing state -> cancelled
//
// The delivery step is skipped for gift jobs in both directions.
type FormSession struct {
	ID         string
	CustomerID string

	state       domain.SessionState
	step        domain.Step
	draft       *domain.OrderDraft
	job         *domain.Job
	lastFailure *SubmitFailure
	updatedAt   time.Time
}

func NewFormSession(id, customerID string) *FormSession {
	return &FormSession{
		ID:         id,
		CustomerID: customerID,
		state:      domain.StateJobDetails,
		step:       domain.StepJobDetails,
		draft:      domain.NewOrderDraft(),
		updatedAt:  time.Now(),
	}
}

func (s *FormSession) State() domain.SessionState { return s.state }
func (s *FormSession) Step() domain.Step          { return s.step }
func (s *FormSession) Job() *domain.Job           { return s.job }
func (s *FormSession) LastFailure() *SubmitFailure {
	return s.lastFailure
}

// Draft returns a copy of the draft, or nil once it has been discarded.
func (s *FormSession) Draft() *domain.OrderDraft {
	return s.draft.Clone()
}

func (s *FormSession) JobType() domain.JobType {
	if s.draft == nil {
		return domain.JobTypeUnset
	}
	return s.draft.JobType
}

// DisplayStep is the 1-based step number shown to the customer.
func (s *FormSession) DisplayStep() int {
	n, err := domain.DisplayStep(s.JobType(), s.step)
	if err != nil {
		return 0
	}
	return n
}

func (s *FormSession) TotalSteps() int {
	return domain.TotalSteps(s.JobType())
}

func (s *FormSession) Pricing() domain.Pricing {
	if s.draft == nil {
		return domain.Pricing{}
	}
	return domain.CalculatePricing(*s.draft)
}

func (s *FormSession) checkEditable() error {
	switch {
	case s.state == domain.StateSubmitting:
		return ErrSubmissionInProgress
	case s.state.Terminal():
		return ErrSessionClosed
	}
	return nil
}

// Apply mutates the draft. When the job type changes so that the current
// step no longer applies, the session moves to the next applicable step.
func (s *FormSession) Apply(edits ...domain.Edit) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	s.draft.Apply(edits...)
	if !s.step.Applies(s.draft.JobType) {
		next, _ := domain.NextStep(s.draft.JobType, s.step)
		s.moveTo(next)
	}
	s.touch()
	return nil
}

// Validate runs the current step's validator without changing anything.
func (s *FormSession) Validate(now time.Time) domain.StepResult {
	if s.draft == nil {
		return domain.StepResult{Step: s.step}
	}
	return domain.ValidateStep(s.step, *s.draft, now)
}

// Next advances to the following applicable step if the current one validates.
func (s *FormSession) Next(now time.Time) (domain.StepResult, error) {
	if err := s.checkEditable(); err != nil {
		return domain.StepResult{}, err
	}
	result := s.Validate(now)
	if !result.Valid {
		return result, &domain.ValidationError{Result: result}
	}
	next, ok := domain.NextStep(s.draft.JobType, s.step)
	if !ok {
		return result, ErrNoNextStep
	}
	s.moveTo(next)
	s.touch()
	return result, nil
}

// Back retreats to the preceding applicable step. No validation runs.
func (s *FormSession) Back() error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	prev, ok := domain.PrevStep(s.draft.JobType, s.step)
	if !ok {
		return ErrNoPreviousStep
	}
	s.moveTo(prev)
	s.touch()
	return nil
}

// Cancel discards the draft. The caller must have confirmed with the customer.
func (s *FormSession) Cancel(confirmed bool) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if !confirmed {
		return ErrCancelNotConfirmed
	}
	s.state = domain.StateCancelled
	s.draft = nil
	s.touch()
	return nil
}

// BeginSubmit re-validates every applicable step and assembles the payload.
// On a validation failure the session moves to the first failing step.
func (s *FormSession) BeginSubmit(now time.Time) ([]port.FormField, error) {
	if err := s.checkEditable(); err != nil {
		return nil, err
	}
	if _, ok := domain.NextStep(s.draft.JobType, s.step); ok {
		return nil, ErrNotFinalStep
	}
	for _, step := range domain.ApplicableSteps(s.draft.JobType) {
		result := domain.ValidateStep(step, *s.draft, now)
		if !result.Valid {
			s.moveTo(step)
			s.touch()
			return nil, &domain.ValidationError{Result: result}
		}
	}

	fields, err := AssembleSubmission(*s.draft)
	if err != nil {
		return nil, err
	}
	s.state = domain.StateSubmitting
	s.lastFailure = nil
	s.touch()
	return fields, nil
}

// CompleteSubmit records the created job and discards the draft.
func (s *FormSession) CompleteSubmit(job *domain.Job) {
	s.state = domain.StateSubmitted
	s.job = job
	s.draft = nil
	s.lastFailure = nil
	s.touch()
}

// FailSubmit returns to the final step keeping the draft for a retry.
func (s *FormSession) FailSubmit(err error) {
	s.moveTo(domain.StepItemDetails)
	s.lastFailure = failureFrom(err)
	s.touch()
}

// Submit runs the whole submission against the gateway.
func (s *FormSession) Submit(ctx context.Context, gateway port.JobGateway, now time.Time) (*domain.Job, error) {
	fields, err := s.BeginSubmit(now)
	if err != nil {
		return nil, err
	}
	job, err := gateway.CreateJob(ctx, fields)
	if err != nil {
		s.FailSubmit(err)
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.CompleteSubmit(job)
	return job, nil
}

func (s *FormSession) moveTo(step domain.Step) {
	s.step = step
	s.state = domain.StateForStep(step)
}

func (s *FormSession) touch() {
	s.updatedAt = time.Now()
}

type sessionSnapshot struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	State       domain.SessionState `json:"state"`
	Step        domain.Step         `json:"step"`
	Draft       *domain.OrderDraft  `json:"draft,omitempty"`
	Job         *domain.Job         `json:"job,omitempty"`
	LastFailure *SubmitFailure      `json:"last_failure,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (s *FormSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionSnapshot{
		ID:          s.ID,
		CustomerID:  s.CustomerID,
		State:       s.state,
		Step:        s.step,
		Draft:       s.draft,
		Job:         s.job,
		LastFailure: s.lastFailure,
		UpdatedAt:   s.updatedAt,
	})
}

func (s *FormSession) UnmarshalJSON(b []byte) error {
	var snap sessionSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	if !snap.Step.Valid() {
		return fmt.Errorf("form session %s: invalid step %d", snap.ID, snap.Step)
	}
	if !snap.State.Terminal() && snap.Draft == nil {
		return fmt.Errorf("form session %s: draft missing in state %s", snap.ID, snap.State)
	}
	*s = FormSession{
		ID:          snap.ID,
		CustomerID:  snap.CustomerID,
		state:       snap.State,
		step:        snap.Step,
		draft:       snap.Draft,
		job:         snap.Job,
		lastFailure: snap.LastFailure,
		updatedAt:   snap.UpdatedAt,
	}
	return nil
}
