package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/carryo/job-intake/internal/core/domain"
)

var ErrAddressNotFound = errors.New("address not found")

// Geocoder talks to a Nominatim-compatible service.
type Geocoder struct {
	client *Client
}

func NewGeocoder(client *Client) *Geocoder {
	return &Geocoder{client: client}
}

type place struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (g *Geocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	var p place
	if err := g.get(ctx, "/reverse", q, &p); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	return p.DisplayName, nil
}

func (g *Geocoder) Forward(ctx context.Context, address string) (*domain.Location, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("q", address)

	var places []place
	if err := g.get(ctx, "/search", q, &places); err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	if len(places) == 0 {
		return nil, ErrAddressNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: bad latitude %q", places[0].Lat)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: bad longitude %q", places[0].Lon)
	}
	return &domain.Location{Address: places[0].DisplayName, Lat: lat, Lng: lng}, nil
}

func (g *Geocoder) get(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := g.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.client.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}
