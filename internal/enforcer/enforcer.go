// Package enforcer decides what to do with a merge request based on whether it
// references an issue-tracker ticket.
//
// A merge request that is being opened must carry a ticket key in its source
// branch name or, failing that, in its description. The branch is checked first
// and only one location is ever validated. Merge requests with no reference at
// all are closed and receive an explanatory comment. Nothing is kept between
// events, so one Engine serves concurrent deliveries.
package enforcer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/drewfead/ticketgate/internal/config"
	"github.com/drewfead/ticketgate/internal/gitlab"
	"github.com/drewfead/ticketgate/internal/logging"
	"github.com/drewfead/ticketgate/internal/ticket"
)

// ErrMissingProjectID is returned when a merge request must be closed but the
// event carries no project id.
var ErrMissingProjectID = errors.New("merge request event has no project id")

// Tracker validates ticket keys.
type Tracker interface {
	Lookup(ctx context.Context, key string) ticket.LookupResult
}

// MergeRequests performs the merge request writes used for auto-closing.
type MergeRequests interface {
	CloseMergeRequest(ctx context.Context, projectID, iid int64) error
	PostComment(ctx context.Context, projectID, iid int64, body string) error
}

// Engine processes merge request events.
type Engine struct {
	tracker      Tracker
	mrs          MergeRequests
	closeComment string
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCloseComment overrides the note posted on auto-closed merge requests.
func WithCloseComment(body string) Option {
	return func(e *Engine) {
		if body != "" {
			e.closeComment = body
		}
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(tracker Tracker, mrs MergeRequests, opts ...Option) *Engine {
	e := &Engine{
		tracker:      tracker,
		mrs:          mrs,
		closeComment: config.DefaultCloseComment,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one event through the decision flow. Outbound failures are folded
// into the Outcome; the only error returned is ErrMissingProjectID.
func (e *Engine) Process(ctx context.Context, ev *gitlab.MergeRequestEvent) (Outcome, error) {
	attrs := ev.ObjectAttributes
	log := e.logger.With("iid", attrs.IID, "state", attrs.State)
	log.InfoContext(ctx, "received merge request event")

	if attrs.State != gitlab.StateOpened {
		out := Outcome{Kind: KindIgnored, IID: attrs.IID}
		log.InfoContext(ctx, "merge request is not open", "outcome", out.Kind)
		return out, nil
	}

	if ref, ok := ticket.Extract(attrs.SourceBranch); ok {
		return e.validate(ctx, log, SourceBranch, ref, attrs.IID), nil
	}
	if ref, ok := ticket.Extract(attrs.Description); ok {
		return e.validate(ctx, log, SourceDescription, ref, attrs.IID), nil
	}

	log.InfoContext(ctx, "no ticket found in the branch name or description")
	if ev.Project.ID == nil {
		log.ErrorContext(ctx, "cannot close merge request", "error", ErrMissingProjectID)
		return Outcome{}, ErrMissingProjectID
	}
	return e.autoClose(ctx, log, *ev.Project.ID, attrs.IID), nil
}

func (e *Engine) validate(ctx context.Context, log *slog.Logger, src Source, ref string, iid int64) Outcome {
	res := e.tracker.Lookup(ctx, ref)

	out := Outcome{Kind: KindInvalidTicket, Source: src, Ticket: ref, IID: iid}
	if res.Found {
		out.Kind = KindValidTicket
		if res.Key != "" {
			out.Ticket = res.Key
		}
	}
	log.InfoContext(ctx, out.Message(), "outcome", out.Kind, "ticket", out.Ticket, "source", string(src))
	return out
}

// autoClose closes the merge request and, only if that worked, comments on it.
// A failed comment degrades the outcome but does not undo or fail the close.
func (e *Engine) autoClose(ctx context.Context, log *slog.Logger, projectID, iid int64) Outcome {
	log = log.With("project_id", projectID)

	if err := e.mrs.CloseMergeRequest(ctx, projectID, iid); err != nil {
		log.ErrorContext(ctx, "failed to close merge request", apiErrorAttrs(err)...)
		return Outcome{Kind: KindCloseFailed, IID: iid, CloseErr: err}
	}
	log.InfoContext(ctx, "merge request closed")

	if err := e.mrs.PostComment(ctx, projectID, iid, e.closeComment); err != nil {
		log.ErrorContext(ctx, "failed to comment on merge request", apiErrorAttrs(err)...)
		return Outcome{Kind: KindClosedCommentFailed, IID: iid, CommentErr: err}
	}
	log.InfoContext(ctx, "commented on merge request")

	return Outcome{Kind: KindClosedCommented, IID: iid}
}

// apiErrorAttrs surfaces the status and body of a GitLab rejection for diagnosis.
func apiErrorAttrs(err error) []any {
	attrs := []any{"error", err}
	var apiErr *gitlab.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, "status", apiErr.StatusCode, "response", apiErr.Body)
	}
	return attrs
}
