// Command ticketgate is the operator CLI for the merge request ticket gate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drewfead/ticketgate/internal/config"
	"github.com/drewfead/ticketgate/internal/daemon"
	"github.com/drewfead/ticketgate/internal/gitlab"
	"github.com/drewfead/ticketgate/internal/logging"
	"github.com/drewfead/ticketgate/internal/ticket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// errNoTicket signals a negative answer rather than a failure to produce one.
var errNoTicket = errors.New("no ticket")

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		verbose     bool
		projectOnly bool
		cfg         *config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "ticketgate",
		Short: "Inspect and exercise the merge request ticket gate",
		Long: `ticketgate is the operator companion to ticketgated.

It runs the same ticket extraction, Jira lookup and merge request decision
flow that the webhook daemon uses, so a policy decision can be reproduced
from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			if err := logging.Init(logging.Config{Level: level, Output: cmd.ErrOrStderr()}); err != nil {
				return err
			}

			var err error
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			cfg, err = config.LoadFile(configPath)
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $TICKETGATE_CONFIG or ~/.config/ticketgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	extractCmd := &cobra.Command{
		Use:   "extract <text>...",
		Short: "Print the first ticket reference found in the text",
		Long: `Print the first ticket reference found in the text.

Arguments are joined with spaces. Exits non-zero when no reference is found.
With --project only the project key (ABC in ABC-123) is printed.

Examples:
  ticketgate extract feature/ABC-123-fix-login
  git branch --show-current | xargs ticketgate extract --project`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, ok := ticket.Extract(strings.Join(args, " "))
			if !ok {
				return errNoTicket
			}
			if projectOnly {
				project, _, _ := ticket.SplitKey(ref)
				ref = project
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref)
			return nil
		},
	}
	extractCmd.Flags().BoolVar(&projectOnly, "project", false, "Print only the project key")

	lookupCmd := &cobra.Command{
		Use:   "lookup <KEY>",
		Short: "Check whether a ticket exists in Jira",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}

	replayCmd := &cobra.Command{
		Use:   "replay <event.json|->",
		Short: "Run a saved merge request event through the decision flow",
		Long: `Run a saved merge request event through the decision flow.

This performs the same outbound calls as the daemon: a merge request without
a ticket reference really is closed and commented on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg, args[0])
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	rootCmd.AddCommand(extractCmd, lookupCmd, replayCmd, configCmd)
	return rootCmd
}

func runLookup(ctx context.Context, w io.Writer, cfg *config.Config, key string) error {
	tracker, err := daemon.NewTracker(cfg)
	if err != nil {
		return err
	}
	return printTicket(ctx, w, tracker, key)
}

func printTicket(ctx context.Context, w io.Writer, tracker ticket.Client, key string) error {
	st := newStyles(w)
	t, err := tracker.GetTicket(ctx, key)
	if err != nil {
		fmt.Fprintln(w, st.invalid.Render("Invalid JIRA ticket: "+key), st.muted.Render("("+tracker.Name()+": "+err.Error()+")"))
		return errNoTicket
	}

	fmt.Fprintln(w, st.valid.Render("Valid JIRA ticket: "+t.Key))
	if project, number, ok := ticket.SplitKey(t.Key); ok {
		fmt.Fprintf(w, "  Project: %s (issue %d)\n", project, number)
	}
	if t.Summary != "" {
		fmt.Fprintf(w, "  Summary: %s\n", t.Summary)
	}
	if t.Status != "" {
		fmt.Fprintf(w, "  Status:  %s\n", t.Status)
	}
	fmt.Fprintf(w, "  URL:     %s\n", st.muted.Render(t.URL))
	return nil
}

func runReplay(ctx context.Context, stdin io.Reader, w io.Writer, cfg *config.Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	ev, err := gitlab.DecodeMergeRequestEvent(r)
	if err != nil {
		return err
	}

	engine, err := daemon.NewEngine(cfg)
	if err != nil {
		return err
	}

	out, err := engine.Process(ctx, ev)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out.Message())
	return nil
}
