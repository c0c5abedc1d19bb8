package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// SessionsClient talks to the backend session service.
type SessionsClient struct {
	base *BaseClient
}

// NewSessionsClient returns client.
func NewSessionsClient(baseURL string, httpClient HTTPDoer, tokens TokenSource) *SessionsClient {
	return &SessionsClient{base: NewBaseClient(baseURL, httpClient, tokens)}
}

// ActiveSession fetches GET /sessions/active. It returns ErrNoActiveSession on 404 and
// ErrUnauthorized on 401.
func (c *SessionsClient) ActiveSession(ctx context.Context) (*TelemetryPayload, error) {
	var payload TelemetryPayload
	if err := c.getJSON(ctx, "/sessions/active", &payload); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	return &payload, nil
}

// SessionByID fetches GET /sessions/{id}.
func (c *SessionsClient) SessionByID(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.getJSON(ctx, "/sessions/"+url.PathEscape(sessionID), &detail); err != nil {
		return nil, err
	}
	if detail.SessionID == "" {
		detail.SessionID = sessionID
	}
	return &detail, nil
}

// StopSession posts POST /sessions/stop. Any non-2xx is returned as an error; there is no retry.
func (c *SessionsClient) StopSession(ctx context.Context, req StopSessionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	status, respBody, err := c.base.Do(ctx, http.MethodPost, "/sessions/stop", body)
	if err != nil {
		return err
	}
	return statusErr(http.MethodPost, "/sessions/stop", status, respBody)
}

// Receipt fetches GET /receipts/{id}.
func (c *SessionsClient) Receipt(ctx context.Context, sessionID string) (*Receipt, error) {
	var receipt Receipt
	if err := c.getJSON(ctx, "/receipts/"+url.PathEscape(sessionID), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *SessionsClient) getJSON(ctx context.Context, path string, target interface{}) error {
	status, body, err := c.base.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := statusErr(http.MethodGet, path, status, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("clients: decode %s: %w", path, err)
	}
	return nil
}

func statusErr(method, path string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Method: method, Path: path, Status: status, Body: string(body)}
	}
}
