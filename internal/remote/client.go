// Package remote is the HTTP JSON client for the remote session service.
//
//	POST   {base}/sessions                          -> {"id": "..."}
//	GET    {base}/sessions?user_id=&company_id=     -> [session, ...]
//	DELETE {base}/sessions/{id}
//	GET    {base}/health
//
// Any non-2xx reply is returned as a *StatusError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/fieldtrack/internal/httputil"
	"github.com/banshee-data/fieldtrack/internal/track"
)

// ErrNotConfigured is returned by every call on a client without a base
// URL.
var ErrNotConfigured = errors.New("remote service not configured")

// StatusError is a non-2xx reply.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the remote session service.
type Client struct {
	base   string
	token  string
	client httputil.HTTPClient
}

// NewClient returns a client for baseURL. An empty token sends no
// Authorization header; a nil client uses http.DefaultClient.
func NewClient(baseURL, token string, client httputil.HTTPClient) *Client {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: client,
	}
}

// Configured reports whether a base URL was given.
func (c *Client) Configured() bool {
	return c != nil && c.base != ""
}

type createResponse struct {
	ID string `json:"id"`
}

// Create stores s remotely and returns the id the service assigned.
func (c *Client) Create(ctx context.Context, s track.Session) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create session %s: empty id in response", s.ID)
	}
	return resp.ID, nil
}

// List returns the remote sessions for a user, optionally narrowed to a
// company.
func (c *Client) List(ctx context.Context, userID, companyID string) ([]track.Session, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if companyID != "" {
		q.Set("company_id", companyID)
	}
	var sessions []track.Session
	if err := c.do(ctx, http.MethodGet, "/sessions", q, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Delete removes a session remotely.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil, nil)
}

// Online probes {base}/health. Any transport error or non-2xx reply counts
// as offline.
func (c *Client) Online(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil) == nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, u, err)
	}
	return nil
}
