package api

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx answer of the backend.
type Error struct {
	Status  int
	Message string
	Reasons []string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("api: %d %s: %s", e.Status, msg, strings.Join(e.Reasons, "; "))
	}
	return fmt.Sprintf("api: %d %s", e.Status, msg)
}

func (e *Error) StatusCode() int { return e.Status }

// ModerationReasons are the content-moderation findings to show verbatim.
func (e *Error) ModerationReasons() []string { return e.Reasons }

func (e *Error) UserMessage() string {
	switch {
	case e.Status == http.StatusUnauthorized:
		return "Your session has expired. Please sign in again."
	case len(e.Reasons) > 0 && e.Message == "":
		return "Your job could not be posted."
	}
	return e.Message
}
