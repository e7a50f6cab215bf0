// Package gitlab decodes merge request webhooks and performs the few merge request
// write operations the enforcer needs.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 8 << 10

// APIError is returned when GitLab answers with a non-2xx status.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the GitLab v4 REST API with a private token.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	timeout    time.Duration
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds each GitLab request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient creates a GitLab client. baseURL is the instance root, e.g. "https://gitlab.example.com".
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("gitlab: base URL is required")
	}
	if token == "" {
		return nil, errors.New("gitlab: token is required")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CloseMergeRequest transitions a merge request to "closed".
func (c *Client) CloseMergeRequest(ctx context.Context, projectID, iid int64) error {
	u := fmt.Sprintf("%s/api/v4/projects/%d/merge_requests/%d?%s",
		c.baseURL, projectID, iid, url.Values{"state_event": {"close"}}.Encode())

	return c.do(ctx, http.MethodPut, u, "close merge request")
}

// PostComment adds a note to a merge request.
func (c *Client) PostComment(ctx context.Context, projectID, iid int64, body string) error {
	u := fmt.Sprintf("%s/api/v4/projects/%d/merge_requests/%d/notes?%s",
		c.baseURL, projectID, iid, url.Values{"body": {body}}.Encode())

	return c.do(ctx, http.MethodPost, u, "post comment")
}

// do performs a single attempt of a body-less write request.
func (c *Client) do(ctx context.Context, method, u, operation string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", operation, err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	return nil
}
