package domain

import (
	"fmt"
	"strings"
)

// JobType is the closed set of job kinds a customer can request.
// The zero value means the customer has not chosen yet.
type JobType uint8

const (
	JobTypeUnset JobType = iota
	JobTypeMove
	JobTypeRecycle
	JobTypeGift
)

// AllJobTypes lists every selectable job type.
func AllJobTypes() []JobType {
	return []JobType{JobTypeMove, JobTypeRecycle, JobTypeGift}
}

func ParseJobType(s string) (JobType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return JobTypeUnset, nil
	case "move":
		return JobTypeMove, nil
	case "recycle":
		return JobTypeRecycle, nil
	case "gift":
		return JobTypeGift, nil
	}
	return JobTypeUnset, fmt.Errorf("unknown job type %q", s)
}

func (t JobType) String() string {
	switch t {
	case JobTypeUnset:
		return ""
	case JobTypeMove:
		return "move"
	case JobTypeRecycle:
		return "recycle"
	case JobTypeGift:
		return "gift"
	}
	panic(fmt.Sprintf("domain: unhandled job type %d", uint8(t)))
}

func (t JobType) IsSet() bool {
	return t != JobTypeUnset
}

func (t JobType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *JobType) UnmarshalText(b []byte) error {
	parsed, err := ParseJobType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type PaymentType string

const (
	PaymentCash   PaymentType = "CASH"
	PaymentOnline PaymentType = "ONLINE_PAYMENT"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentCash:
		return PaymentCash, nil
	case PaymentOnline:
		return PaymentOnline, nil
	}
	return "", fmt.Errorf("unknown payment type %q", s)
}
