package port

import (
	"context"
	"io"

	"github.com/carryo/job-intake/internal/core/domain"
)

// FormField is one part of a multipart submission.
type FormField struct {
	Name  string
	Value string
}

type JobGateway interface {
	// CreateJob sends the assembled fields in one call and returns the created record
	CreateJob(ctx context.Context, fields []FormField) (*domain.Job, error)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
	Forward(ctx context.Context, address string) (*domain.Location, error)
}

type ImageStore interface {
	// Upload stores a photo and returns its public URL
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}
