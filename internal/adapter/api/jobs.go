package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/port"
)

// Jobs creates jobs on the Carryo backend.
type Jobs struct {
	client *Client
}

func NewJobs(client *Client) *Jobs {
	return &Jobs{client: client}
}

// CreateJob posts the fields as one multipart form, one part per field.
func (j *Jobs) CreateJob(ctx context.Context, fields []port.FormField) (*domain.Job, error) {
	body, contentType, err := encodeMultipart(fields)
	if err != nil {
		return nil, err
	}

	resp, err := j.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.client.baseURL+"/jobs", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	var job domain.Job
	if err := decodeJSON(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func encodeMultipart(fields []port.FormField) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
