package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Auth holds Jira credentials. APIKey wins when both schemes are populated.
type Auth struct {
	APIKey   string
	Username string
	Password string
}

func (a Auth) apply(req *http.Request) {
	switch {
	case a.APIKey != "":
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	case a.Username != "":
		req.SetBasicAuth(a.Username, a.Password)
	}
}

// APIError is returned for non-2xx tracker responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API error: %d - %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the tracker.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// JiraClient implements Client for Jira's REST API v2.
type JiraClient struct {
	baseURL    string
	auth       Auth
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures the JiraClient during construction.
type Option func(*JiraClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(j *JiraClient) { j.httpClient = c }
}

// WithTimeout bounds each tracker request.
func WithTimeout(d time.Duration) Option {
	return func(j *JiraClient) { j.timeout = d }
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(j *JiraClient) { j.logger = l }
}

// NewJiraClient creates a Jira client rooted at baseURL (e.g. "https://jira.example.com").
func NewJiraClient(baseURL string, auth Auth, opts ...Option) (*JiraClient, error) {
	if baseURL == "" {
		return nil, errors.New("jira: base URL is required")
	}
	if auth.APIKey == "" && (auth.Username == "" || auth.Password == "") {
		return nil, errors.New("jira: an API key or username and password is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}

	c := &JiraClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		auth:       auth,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns "Jira".
func (c *JiraClient) Name() string {
	return "Jira"
}

// GetTicket retrieves an issue by key.
func (c *JiraClient) GetTicket(ctx context.Context, key string) (*Ticket, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,status", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.auth.apply(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var issue jiraIssue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if issue.Key == "" {
		return nil, fmt.Errorf("failed to parse response: issue %s has no key", key)
	}

	return &Ticket{
		Key:     issue.Key,
		Summary: issue.Fields.Summary,
		Status:  issue.Fields.Status.Name,
		URL:     fmt.Sprintf("%s/browse/%s", c.baseURL, issue.Key),
	}, nil
}

// Lookup validates key against the tracker. Every failure, whether the issue is
// missing or the tracker could not be reached, resolves to Found=false.
func (c *JiraClient) Lookup(ctx context.Context, key string) LookupResult {
	t, err := c.GetTicket(ctx, key)
	if err != nil {
		c.logger.DebugContext(ctx, "ticket lookup failed", "key", key, "not_found", IsNotFound(err), "error", err)
		return LookupResult{Key: key}
	}
	return LookupResult{Key: t.Key, Found: true}
}

// Jira API response types
type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}
