// Command ticketgated serves the GitLab merge request webhook.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/drewfead/ticketgate/internal/config"
	"github.com/drewfead/ticketgate/internal/daemon"
	"github.com/drewfead/ticketgate/internal/logging"
)

// Version is set at build time
var Version = "dev"

func main() {
	exitCode := run()
	os.Exit(exitCode)
}

func run() (exitCode int) {
	// Top-level panic recovery
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "component", "main")
			fmt.Fprintf(os.Stderr, "FATAL: unrecovered panic: %v\n", r)
			exitCode = 2
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	if err := logging.Init(logging.Config{
		Level:     logging.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		SentryDSN: cfg.Log.SentryDSN,
		Env:       cfg.Log.Env,
		Version:   Version,
		LogFile:   cfg.Log.File,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Flush(2 * time.Second)

	// Missing configuration is fatal here rather than surfacing per request.
	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", "error", err)
		return 1
	}

	d, err := daemon.New(cfg)
	if err != nil {
		logging.Error("failed to initialize daemon", "error", err)
		return 1
	}

	logging.Info("starting ticketgated",
		"version", Version,
		"listen", cfg.Server.Listen,
		"gitlab", cfg.GitLabBaseURL(),
		"jira", cfg.Jira.Host,
		"jira_auth", string(cfg.Jira.AuthScheme()),
		"sentry", cfg.Log.SentryDSN != "",
	)
	logging.Warn("webhook requests are not authenticated; restrict access to the listener")

	if err := d.Run(); err != nil {
		logging.Error("daemon error", "error", err)
		return 1
	}

	return 0
}
