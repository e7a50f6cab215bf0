package webhook

import (
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/google/uuid"

	"github.com/drewfead/ticketgate/internal/logging"
)

// Request id sources, most specific first. GitLab stamps every delivery with
// X-Gitlab-Event-UUID, which also shows up in the project's webhook log.
var requestIDHeaders = []string{"X-Gitlab-Event-UUID", "X-Request-Id"}

// withRequestID tags the request context (and therefore every log record made
// with it) with a request id, generating one when the caller sent none.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		for _, h := range requestIDHeaders {
			if id = r.Header.Get(h); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)
		ctx := logging.ContextWithAttrs(r.Context(), slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRecovery turns a panic in a handler into a 500 and reports it.
func withRecovery(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.CapturePanic(rec, "component", "webhook", "path", r.URL.Path)
				logger.WarnContext(r.Context(), "recovered from handler panic", "path", r.URL.Path)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withSentry gives each request its own Sentry hub so captured events carry
// request details.
func withSentry(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	}).Handle(next)
}
