package service

import (
	"errors"
	"strings"
)

var (
	ErrSessionNotFound        = errors.New("form session not found")
	ErrSessionClosed          = errors.New("form session already closed")
	ErrSubmissionInProgress   = errors.New("submission already in progress")
	ErrSessionBusy            = errors.New("form session is being updated")
	ErrSubmitInterrupted      = errors.New("previous submission did not finish")
	ErrCancelNotConfirmed     = errors.New("cancel not confirmed")
	ErrNoNextStep             = errors.New("already on the last step")
	ErrNoPreviousStep         = errors.New("already on the first step")
	ErrNotFinalStep           = errors.New("submit is only allowed from the last step")
	ErrUnknownRecyclingCenter = errors.New("unknown recycling center")
	ErrPhotoUpload            = errors.New("photo upload failed")
)

// SubmitFailure is the user-facing record of the last failed submission.
type SubmitFailure struct {
	Message string   `json:"message"`
	Status  int      `json:"status,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

type statusCoder interface {
	StatusCode() int
}

type reasoner interface {
	ModerationReasons() []string
}

type userMessager interface {
	UserMessage() string
}

func failureFrom(err error) *SubmitFailure {
	f := &SubmitFailure{Message: "Failed to create job. Please try again."}

	var um userMessager
	if errors.As(err, &um) && strings.TrimSpace(um.UserMessage()) != "" {
		f.Message = um.UserMessage()
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		f.Status = sc.StatusCode()
	}
	var rs reasoner
	if errors.As(err, &rs) {
		f.Reasons = append([]string(nil), rs.ModerationReasons()...)
	}
	return f
}
