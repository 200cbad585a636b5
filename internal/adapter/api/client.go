package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

var ErrNoToken = errors.New("no access token")

// TokenSource supplies bearer tokens. Refresh is called at most once per
// request, after the server answered 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type tokenKey struct{}

// WithAccessToken attaches the caller's access token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// ContextTokens forwards the token found in the request context. It cannot
// refresh; a 401 goes back to the caller, which owns the session.
type ContextTokens struct{}

func (ContextTokens) Token(ctx context.Context) (string, error) {
	token, ok := AccessTokenFromContext(ctx)
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

func (ContextTokens) Refresh(ctx context.Context) (string, error) {
	return "", errors.New("context token cannot be refreshed")
}

// Client is a JSON/multipart client for one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	headers    http.Header
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// NewClient creates a client for baseURL. tokens may be nil for
// unauthenticated endpoints.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type requestFunc func(ctx context.Context) (*http.Request, error)

// do sends the request built by build. On 401 the token is refreshed and the
// request rebuilt and sent once more.
func (c *Client) do(ctx context.Context, build requestFunc) (*http.Response, error) {
	var token string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		token = t
	}

	resp, err := c.send(ctx, build, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || c.tokens == nil {
		return resp, err
	}

	refreshed, rerr := c.tokens.Refresh(ctx)
	if rerr != nil {
		return resp, nil
	}
	resp.Body.Close()
	return c.send(ctx, build, refreshed)
}

func (c *Client) send(ctx context.Context, build requestFunc, token string) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// decodeJSON reads a 2xx JSON body into out, or turns anything else into *Error.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &Error{Status: resp.StatusCode}

	var payload struct {
		Error            string   `json:"error"`
		Message          string   `json:"message"`
		Msg              string   `json:"msg"`
		ErrorDescription string   `json:"error_description"`
		Reasons          []string `json:"reasons"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = firstNonEmpty(payload.Message, payload.ErrorDescription, payload.Msg, payload.Error)
		e.Reasons = payload.Reasons
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
