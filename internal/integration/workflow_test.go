// Package integration provides end-to-end tests that run ticketgated against fake
// Jira and GitLab instances over real sockets.
package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/drewfead/ticketgate/internal/config"
	"github.com/drewfead/ticketgate/internal/daemon"
)

// fakeGitLab records every merge request mutation it receives.
type fakeGitLab struct {
	mu       sync.Mutex
	requests []string
	notes    []string
	tokens   []string
	failPUT  bool
}

func (f *fakeGitLab) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.tokens = append(f.tokens, r.Header.Get("PRIVATE-TOKEN"))
	if r.Method == http.MethodPost {
		f.notes = append(f.notes, r.URL.Query().Get("body"))
	}
	if r.Method == http.MethodPut && f.failPUT {
		http.Error(w, `{"message":"403 Forbidden"}`, http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeGitLab) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests, f.notes, f.tokens = nil, nil, nil
}

func (f *fakeGitLab) snapshot() (requests, notes, tokens []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...), append([]string(nil), f.notes...), append([]string(nil), f.tokens...)
}

// startDaemon serves ticketgated on a random port until the test ends.
func startDaemon(t *testing.T, cfg *config.Config) string {
	t.Helper()

	d, err := daemon.New(cfg)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.ServeListener(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("shutdown: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return "http://" + ln.Addr().String()
}

func setup(t *testing.T) (addr string, gl *fakeGitLab) {
	t.Helper()

	known := map[string]bool{"ABC-123": true, "OPS-7": true}
	jira := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/")
		if !known[key] {
			http.Error(w, `{"errorMessages":["Issue Does Not Exist"]}`, http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"key":"`+key+`","fields":{"summary":"s","status":{"name":"Open"}}}`)
	}))
	t.Cleanup(jira.Close)

	gl = &fakeGitLab{}
	glSrv := httptest.NewServer(gl)
	t.Cleanup(glSrv.Close)

	cfg := config.DefaultConfig()
	cfg.GitLab.Host = glSrv.URL
	cfg.GitLab.Token = "glpat-integration"
	cfg.Jira.Host = jira.URL
	cfg.Jira.Username = "bot"
	cfg.Jira.Password = "hunter2"
	cfg.Server.ShutdownTimeout = 2 * time.Second

	return startDaemon(t, cfg), gl
}

func deliver(t *testing.T, addr, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, addr+"/webhook", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gitlab-Event", "Merge Request Hook")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func event(state, branch, description string, iid int) string {
	return `{"object_kind":"merge_request","object_attributes":{"iid":` + strconv.Itoa(iid) +
		`,"state":"` + state + `","source_branch":"` + branch + `","description":"` + description +
		`"},"project":{"id":42}}`
}

// TestMergeRequestLifecycle follows merge requests through the gate:
// 1. An MR with a known ticket in its branch passes untouched
// 2. An MR that only names its ticket in the description passes
// 3. An MR naming an unknown ticket is reported but left open
// 4. An MR without any reference is closed and commented on
// 5. Redelivery of the same event repeats the close
// 6. Follow-up events for the now-closed MR are ignored
func TestMergeRequestLifecycle(t *testing.T) {
	addr, gl := setup(t)

	steps := []struct {
		name      string
		body      string
		wantBody  string
		wantCalls []string
	}{
		{
			name:     "ticket in branch",
			body:     event("opened", "feature/ABC-123-login", "", 1),
			wantBody: "Valid JIRA ticket in branch name: ABC-123",
		},
		{
			name:     "ticket in description",
			body:     event("opened", "hotfix", "Fixes OPS-7 for good", 2),
			wantBody: "Valid JIRA ticket in description: OPS-7",
		},
		{
			name:     "unknown ticket",
			body:     event("opened", "NOPE-1-thing", "", 3),
			wantBody: "Invalid JIRA ticket in branch name: NOPE-1",
		},
		{
			name:     "no reference",
			body:     event("opened", "misc-cleanup", "tidy up", 4),
			wantBody: "Merge request 4 closed",
			wantCalls: []string{
				"PUT /api/v4/projects/42/merge_requests/4?state_event=close",
				"POST /api/v4/projects/42/merge_requests/4/notes?body=" + url.QueryEscape(config.DefaultCloseComment),
			},
		},
		{
			name:     "redelivery",
			body:     event("opened", "misc-cleanup", "tidy up", 4),
			wantBody: "Merge request 4 closed",
			wantCalls: []string{
				"PUT /api/v4/projects/42/merge_requests/4?state_event=close",
				"POST /api/v4/projects/42/merge_requests/4/notes?body=" + url.QueryEscape(config.DefaultCloseComment),
			},
		},
		{
			name:     "closed event",
			body:     event("closed", "misc-cleanup", "tidy up", 4),
			wantBody: "Merge request is not being opened, ignoring.",
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			gl.reset()

			code, body := deliver(t, addr, step.body)
			if code != http.StatusOK {
				t.Fatalf("expected 200, got %d (%q)", code, body)
			}
			if body != step.wantBody {
				t.Errorf("expected body %q, got %q", step.wantBody, body)
			}

			requests, notes, tokens := gl.snapshot()
			if diff := cmp.Diff(step.wantCalls, requests); diff != "" {
				t.Errorf("gitlab calls mismatch (-want +got):\n%s", diff)
			}
			for _, tok := range tokens {
				if tok != "glpat-integration" {
					t.Errorf("expected PRIVATE-TOKEN on every call, got %q", tok)
				}
			}
			if len(notes) > 0 && notes[0] != config.DefaultCloseComment {
				t.Errorf("unexpected comment %q", notes[0])
			}
		})
	}
}

func TestCloseRejected(t *testing.T) {
	addr, gl := setup(t)
	gl.failPUT = true

	code, body := deliver(t, addr, event("opened", "misc", "", 9))

	if code != http.StatusOK || body != "Failed to close merge request 9" {
		t.Errorf("got %d %q", code, body)
	}
	requests, _, _ := gl.snapshot()
	if len(requests) != 1 {
		t.Errorf("comment must not be attempted after a failed close, got %v", requests)
	}
}

func TestHealth(t *testing.T) {
	addr, _ := setup(t)

	resp, err := http.Get(addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(b) != "OK" {
		t.Errorf("got %d %q", resp.StatusCode, b)
	}
	if got := resp.Header.Get("X-Request-Id"); got != "" {
		t.Errorf("health checks are not traced, got request id %q", got)
	}
}

func TestMalformedDeliveryMakesNoCalls(t *testing.T) {
	addr, gl := setup(t)

	for _, body := range []string{
		`{}`,
		`{"project":{"id":42},"object_attributes":{"state":"opened","source_branch":"misc","description":""}}`,
	} {
		code, _ := deliver(t, addr, body)
		if code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, code)
		}
	}

	if requests, _, _ := gl.snapshot(); len(requests) != 0 {
		t.Errorf("expected no gitlab calls, got %v", requests)
	}
}
