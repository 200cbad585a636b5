package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxPhotoSize = 10 << 20

// Storage uploads objects into a public Supabase storage bucket.
type Storage struct {
	client *Client
	bucket string
}

// NewStorage expects a client whose base URL is the Supabase project URL.
func NewStorage(client *Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

func (s *Storage) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPhotoSize+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(data) > maxPhotoSize {
		return "", fmt.Errorf("photo %s exceeds %d bytes", name, maxPhotoSize)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	object := escapePath(name)
	resp, err := s.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.client.baseURL, url.PathEscape(s.bucket), object)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := decodeJSON(resp, nil); err != nil {
		return "", err
	}

	return s.PublicURL(name), nil
}

func (s *Storage) PublicURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.baseURL, url.PathEscape(s.bucket), escapePath(name))
}

func escapePath(name string) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
