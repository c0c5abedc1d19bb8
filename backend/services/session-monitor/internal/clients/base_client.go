package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource provides the bearer credential for backend calls.
type TokenSource interface {
	Token() (string, error)
}

// Sentinel errors mapped from backend status codes.
var (
	ErrUnauthorized    = errors.New("clients: unauthorized")
	ErrNotFound        = errors.New("clients: not found")
	ErrNoActiveSession = fmt.Errorf("clients: no active session: %w", ErrNotFound)
)

// StatusError is returned for non-2xx responses without a dedicated sentinel.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("clients: %s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("clients: %s %s returned %d: %s", e.Method, e.Path, e.Status, body)
}

// BaseClient provides simple GET/POST helpers against the backend base URL.
type BaseClient struct {
	baseURL string
	client  HTTPDoer
	tokens  TokenSource
}

// NewBaseClient builds client with base URL.
func NewBaseClient(baseURL string, client HTTPDoer, tokens TokenSource) *BaseClient {
	return &BaseClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
		tokens:  tokens,
	}
}

func (c *BaseClient) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do executes HTTP request and returns status/body. A missing or expired token short-circuits
// with ErrUnauthorized before anything is sent.
func (c *BaseClient) Do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
