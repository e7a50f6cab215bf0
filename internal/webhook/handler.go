// Package webhook exposes the merge request enforcer over HTTP.
//
// GitLab delivers "Merge Request Hook" events to POST /webhook. The handler does
// not verify the X-Gitlab-Token secret; deployments must restrict who can reach
// the endpoint by other means.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/drewfead/ticketgate/internal/enforcer"
	"github.com/drewfead/ticketgate/internal/gitlab"
	"github.com/drewfead/ticketgate/internal/logging"
)

// MaxBodyBytes caps the size of an accepted event payload.
const MaxBodyBytes = 10 << 20

// Processor runs an event through the decision flow.
type Processor interface {
	Process(ctx context.Context, ev *gitlab.MergeRequestEvent) (enforcer.Outcome, error)
}

// Handler handles HTTP requests for the webhook endpoint.
type Handler struct {
	processor Processor
	logger    *slog.Logger
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(processor Processor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{processor: processor, logger: logger}
}

// RegisterRoutes registers the traced event routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.handleWebhook)
}

// Routes returns the handler tree. Event routes get request-id, panic recovery
// and, when enabled, Sentry request scoping; /healthz is served outside them.
func (h *Handler) Routes() http.Handler {
	events := http.NewServeMux()
	h.RegisterRoutes(events)

	var traced http.Handler = withRequestID(withRecovery(events, h.logger))
	if logging.SentryEnabled() {
		traced = withSentry(traced)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", h.handleHealth)
	root.Handle("/", traced)
	return root
}

// handleHealth reports liveness only; no downstream services are checked.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := gitlab.DecodeMergeRequestEvent(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.logger.WarnContext(r.Context(), "rejected malformed event", "error", err)
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeText(w, status, http.StatusText(status))
		return
	}

	// Outbound calls keep going if GitLab hangs up; a close that was started is
	// allowed to finish.
	ctx := context.WithoutCancel(r.Context())

	out, err := h.processor.Process(ctx, ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to process merge request event", "error", err,
			"iid", ev.ObjectAttributes.IID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeText(w, http.StatusOK, out.Message())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
