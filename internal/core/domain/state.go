package domain

type SessionState string

const (
	StateJobDetails  SessionState = "job_details"
	StatePickup      SessionState = "pickup"
	StateDelivery    SessionState = "delivery"
	StateItemDetails SessionState = "item_details"
	StateSubmitting  SessionState = "submitting"
	StateSubmitted   SessionState = "submitted"
	StateCancelled   SessionState = "cancelled"
)

// StateForStep maps an editing step to its session state.
func StateForStep(s Step) SessionState {
	switch s {
	case StepJobDetails:
		return StateJobDetails
	case StepPickup:
		return StatePickup
	case StepDelivery:
		return StateDelivery
	case StepItemDetails:
		return StateItemDetails
	}
	return ""
}

// Editing reports whether the customer can still change the draft.
func (s SessionState) Editing() bool {
	switch s {
	case StateJobDetails, StatePickup, StateDelivery, StateItemDetails:
		return true
	}
	return false
}

func (s SessionState) Terminal() bool {
	return s == StateSubmitted || s == StateCancelled
}
