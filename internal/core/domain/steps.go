package domain

import (
	"errors"
	"fmt"
)

var ErrStepOutOfRange = errors.New("step out of range")

// Step is an actual form step. Display steps shown to the customer skip
// StepDelivery for gift jobs.
type Step uint8

const (
	StepJobDetails Step = iota + 1
	StepPickup
	StepDelivery
	StepItemDetails
)

const stepCount = 4

func (s Step) String() string {
	switch s {
	case StepJobDetails:
		return "job_details"
	case StepPickup:
		return "pickup"
	case StepDelivery:
		return "delivery"
	case StepItemDetails:
		return "item_details"
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

func (s Step) Valid() bool {
	return s >= StepJobDetails && s <= StepItemDetails
}

// Applies reports whether the step is shown for the job type.
func (s Step) Applies(t JobType) bool {
	return s.Valid() && !(s == StepDelivery && t == JobTypeGift)
}

// TotalSteps is the number of visible steps for the job type.
func TotalSteps(t JobType) int {
	if t == JobTypeGift {
		return stepCount - 1
	}
	return stepCount
}

// ActualStep maps a 1-based display step to the actual step.
func ActualStep(t JobType, display int) (Step, error) {
	if display < 1 || display > TotalSteps(t) {
		return 0, fmt.Errorf("display step %d for %q: %w", display, t, ErrStepOutOfRange)
	}
	if t == JobTypeGift && display >= int(StepDelivery) {
		return Step(display + 1), nil
	}
	return Step(display), nil
}

// DisplayStep is the inverse of ActualStep.
func DisplayStep(t JobType, s Step) (int, error) {
	if !s.Applies(t) {
		return 0, fmt.Errorf("step %s for %q: %w", s, t, ErrStepOutOfRange)
	}
	if t == JobTypeGift && s > StepDelivery {
		return int(s) - 1, nil
	}
	return int(s), nil
}

// NextStep returns the following applicable step, or false on the last one.
func NextStep(t JobType, s Step) (Step, bool) {
	for next := s + 1; next <= StepItemDetails; next++ {
		if next.Applies(t) {
			return next, true
		}
	}
	return s, false
}

// PrevStep returns the preceding applicable step, or false on the first one.
func PrevStep(t JobType, s Step) (Step, bool) {
	for prev := s - 1; prev >= StepJobDetails; prev-- {
		if prev.Applies(t) {
			return prev, true
		}
	}
	return s, false
}

// ApplicableSteps lists the actual steps shown for the job type, in order.
func ApplicableSteps(t JobType) []Step {
	steps := make([]Step, 0, stepCount)
	for s := StepJobDetails; s <= StepItemDetails; s++ {
		if s.Applies(t) {
			steps = append(steps, s)
		}
	}
	return steps
}
