// Package daemon implements the ticketgated background service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/drewfead/ticketgate/internal/config"
	"github.com/drewfead/ticketgate/internal/enforcer"
	"github.com/drewfead/ticketgate/internal/gitlab"
	"github.com/drewfead/ticketgate/internal/logging"
	"github.com/drewfead/ticketgate/internal/ticket"
	"github.com/drewfead/ticketgate/internal/webhook"
)

// Daemon owns the webhook HTTP server.
type Daemon struct {
	config *config.Config
	server *http.Server
}

// New wires the clients, engine and HTTP handler from cfg.
func New(cfg *config.Config) (*Daemon, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	handler := webhook.NewHandler(engine, logging.New("webhook"))
	return &Daemon{
		config: cfg,
		server: &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		},
	}, nil
}

// NewEngine builds the decision engine and its outbound clients from cfg.
// It is shared by the daemon and the replay CLI command.
func NewEngine(cfg *config.Config) (*enforcer.Engine, error) {
	tracker, err := NewTracker(cfg)
	if err != nil {
		return nil, err
	}

	mrs, err := gitlab.NewClient(cfg.GitLabBaseURL(), cfg.GitLab.Token,
		gitlab.WithTimeout(cfg.GitLab.Timeout))
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}

	return enforcer.New(tracker, mrs,
		enforcer.WithCloseComment(cfg.GitLab.CloseComment),
		enforcer.WithLogger(logging.New("enforcer")),
	), nil
}

// NewTracker builds the Jira client with whichever credential scheme cfg selects.
func NewTracker(cfg *config.Config) (*ticket.JiraClient, error) {
	auth := ticket.Auth{}
	switch cfg.Jira.AuthScheme() {
	case config.AuthAPIKey:
		auth.APIKey = cfg.Jira.Token
	case config.AuthBasic:
		auth.Username = cfg.Jira.Username
		auth.Password = cfg.Jira.Password
	}

	tracker, err := ticket.NewJiraClient(cfg.Jira.Host, auth,
		ticket.WithTimeout(cfg.Jira.Timeout),
		ticket.WithLogger(logging.New("jira")),
	)
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	return tracker, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (d *Daemon) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Serve(ctx)
}

// Serve listens on the configured address until ctx is done.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.server.Addr, err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done. In-flight requests get up to the
// configured shutdown timeout to finish.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("listening", "addr", ln.Addr().String())
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down", "timeout", d.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.config.Server.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
