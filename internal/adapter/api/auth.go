package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var ErrNotSignedIn = errors.New("not signed in")

// Session is a Supabase auth session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// SupabaseAuth signs in against Supabase GoTrue and keeps the session
// fresh. It is a TokenSource for clients acting as one customer.
type SupabaseAuth struct {
	client *Client
	now    func() time.Time

	mu      sync.Mutex
	session Session
}

// NewSupabaseAuth expects an unauthenticated client for the Supabase
// project URL that sends the anon key as the apikey header.
func NewSupabaseAuth(client *Client) *SupabaseAuth {
	return &SupabaseAuth{client: client, now: time.Now}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (a *SupabaseAuth) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	return a.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

func (a *SupabaseAuth) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Token returns the current access token, refreshing it first when it has
// expired.
func (a *SupabaseAuth) Token(ctx context.Context) (string, error) {
	s := a.Session()
	if s.AccessToken == "" {
		return "", ErrNotSignedIn
	}
	if !s.ExpiresAt.IsZero() && !a.now().Before(s.ExpiresAt) {
		return a.Refresh(ctx)
	}
	return s.AccessToken, nil
}

func (a *SupabaseAuth) Refresh(ctx context.Context) (string, error) {
	s := a.Session()
	if s.RefreshToken == "" {
		return "", ErrNotSignedIn
	}
	refreshed, err := a.grant(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (a *SupabaseAuth) grant(ctx context.Context, grantType string, body map[string]string) (Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Session{}, err
	}
	resp, err := a.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		endpoint := a.client.baseURL + "/auth/v1/token?grant_type=" + grantType
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth %s: %w", grantType, err)
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		return Session{}, err
	}
	if tr.AccessToken == "" {
		return Session{}, fmt.Errorf("auth %s: empty access token", grantType)
	}

	s := Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		UserID:       tr.User.ID,
	}
	if tr.ExpiresIn > 0 {
		s.ExpiresAt = a.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	a.mu.Lock()
	if s.UserID == "" {
		s.UserID = a.session.UserID
	}
	a.session = s
	a.mu.Unlock()
	return s, nil
}
