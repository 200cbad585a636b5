package port

import (
	"context"

	"github.com/carryo/job-intake/internal/core/domain"
)

type RecyclingCenterCatalog interface {
	// ListRecyclingCenters returns the read-only catalogue ordered by name
	ListRecyclingCenters(ctx context.Context) ([]domain.RecyclingCenter, error)

	// GetRecyclingCenter returns nil when the id is unknown
	GetRecyclingCenter(ctx context.Context, id string) (*domain.RecyclingCenter, error)
}

type SubmissionRepository interface {
	// RecordSubmission persists the ledger entry of a created job
	RecordSubmission(ctx context.Context, s domain.Submission) error
}
