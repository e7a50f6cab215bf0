package daemon

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drewfead/ticketgate/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	jira := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jira-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"key":"ABC-1"}`))
	}))
	t.Cleanup(jira.Close)

	gl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gl.Close)

	cfg := config.DefaultConfig()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.GitLab.Host = gl.URL
	cfg.GitLab.Token = "glpat"
	cfg.Jira.Host = jira.URL
	cfg.Jira.Token = "jira-key"
	return cfg
}

func TestNew_WiresHandler(t *testing.T) {
	d, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body := `{"object_attributes":{"iid":1,"state":"opened","source_branch":"ABC-1","description":null},"project":{"id":2}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "Valid JIRA ticket in branch name: ABC-1" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestNewTracker_BasicAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jira.Token = ""
	cfg.Jira.Username = "bot"
	cfg.Jira.Password = "pw"

	if _, err := NewTracker(cfg); err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	cfg.Jira.Password = ""
	if _, err := NewTracker(cfg); err == nil {
		t.Error("expected error without a usable credential")
	}
}

func TestServeListener_GracefulShutdown(t *testing.T) {
	d, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
