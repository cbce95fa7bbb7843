package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"testing"
)

// Client is an HTTP client for testing API endpoints. Tenant scoping
// works the way the API expects it: every request carries the
// X-Tenant-ID header, and X-Actor-ID when an actor is set.
type Client struct {
	BaseURL    string
	TenantID   string
	ActorID    string
	HTTPClient *http.Client
}

// NewClient creates a new test client scoped to one tenant.
func NewClient(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		TenantID:   tenantID,
		HTTPClient: &http.Client{},
	}
}

// WithActor returns a copy of the client acting as the given user.
func (c *Client) WithActor(actorID string) *Client {
	cp := *c
	cp.ActorID = actorID
	return &cp
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with a JSON body.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

// PUT performs a PUT request with a JSON body.
func (c *Client) PUT(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPut, path, body)
}

// DELETE performs a DELETE request.
func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TenantID != "" {
		req.Header.Set("X-Tenant-ID", c.TenantID)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-ID", c.ActorID)
	}

	return c.HTTPClient.Do(req)
}

// DecodeJSON decodes a response body into v and closes the body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

// RandomTenantID returns a pseudo-random tenant id with the given
// prefix, for isolating tests that share a database.
func RandomTenantID(prefix string) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return prefix + "-" + string(b)
}
