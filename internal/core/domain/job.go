package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAccepted  JobStatus = "accepted"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the record the backend returns after a successful submission.
type Job struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	JobType       JobType         `json:"job_type"`
	Title         string          `json:"title"`
	Status        JobStatus       `json:"status"`
	CustomerPrice decimal.Decimal `json:"customer_price"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	DriverPayout  decimal.Decimal `json:"driver_payout"`
	PaymentType   PaymentType     `json:"payment_type"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Submission is the local ledger entry written once a job was created.
type Submission struct {
	ID          string
	SessionID   string
	CustomerID  string
	JobID       string
	JobType     JobType
	Pricing     Pricing
	SubmittedAt time.Time
}
