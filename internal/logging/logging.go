// Package logging provides structured logging with Sentry integration.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds logging configuration.
type Config struct {
	Level     slog.Level
	Format    string // "text" (default) or "json"
	SentryDSN string
	Env       string // "development", "production"
	Version   string
	LogFile   string    // Path to log file (empty = Output or stderr)
	Output    io.Writer // Overrides stderr when LogFile is empty; used by tests
}

// Logger wraps slog.Logger with Sentry integration.
type Logger struct {
	*slog.Logger
	sentryEnabled bool
	logFile       *os.File // nil if not logging to a file
}

var defaultLogger *Logger

// Init initializes the global logger with the given config.
func Init(cfg Config) error {
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			Release:          cfg.Version,
			TracesSampleRate: 0.1,
		})
		if err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		sentryEnabled = true
	}

	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	var logFile *os.File

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}

		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		output = f
		logFile = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var base slog.Handler
	switch cfg.Format {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}

	defaultLogger = &Logger{
		Logger:        slog.New(&sentryHandler{Handler: base, sentryEnabled: sentryEnabled}),
		sentryEnabled: sentryEnabled,
		logFile:       logFile,
	}

	slog.SetDefault(defaultLogger.Logger)
	return nil
}

// SentryEnabled reports whether errors are being forwarded to Sentry.
func SentryEnabled() bool {
	return defaultLogger != nil && defaultLogger.sentryEnabled
}

// Flush flushes any buffered events to Sentry and closes the log file. Call before shutdown.
func Flush(timeout time.Duration) {
	if defaultLogger == nil {
		return
	}
	if defaultLogger.sentryEnabled {
		sentry.Flush(timeout)
	}
	if defaultLogger.logFile != nil {
		defaultLogger.logFile.Sync()
		defaultLogger.logFile.Close()
	}
}

// Default returns the default logger.
func Default() *Logger {
	if defaultLogger == nil {
		return &Logger{Logger: slog.Default()}
	}
	return defaultLogger
}

// New returns a logger tagged with a component attribute.
func New(component string) *slog.Logger {
	return Default().With(slog.String("component", component))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxAttrsKey struct{}

// ContextWithAttrs returns a context whose log records carry attrs in addition
// to any attributes already attached to ctx.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := attrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// sentryHandler wraps an slog.Handler and sends errors to Sentry.
type sentryHandler struct {
	slog.Handler
	sentryEnabled bool
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := attrsFromContext(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}
	if h.sentryEnabled && r.Level >= slog.LevelError {
		h.sendToSentry(ctx, r)
	}
	return nil
}

func (h *sentryHandler) sendToSentry(ctx context.Context, r slog.Record) {
	event := sentry.NewEvent()
	event.Level = slogLevelToSentry(r.Level)
	event.Message = r.Message
	event.Timestamp = r.Time

	r.Attrs(func(a slog.Attr) bool {
		event.Extra[a.Key] = a.Value.Any()
		return true
	})

	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		event.Exception = []sentry.Exception{{
			Type:  "LogError",
			Value: r.Message,
			Stacktrace: &sentry.Stacktrace{
				Frames: []sentry.Frame{{
					Filename: frame.File,
					Function: frame.Function,
					Lineno:   frame.Line,
				}},
			},
		}}
	}

	// Request-scoped hubs (set by the sentry HTTP middleware) carry request tags.
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureEvent(event)
		return
	}
	sentry.CaptureEvent(event)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithAttrs(attrs), sentryEnabled: h.sentryEnabled}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithGroup(name), sentryEnabled: h.sentryEnabled}
}

func slogLevelToSentry(level slog.Level) sentry.Level {
	switch {
	case level >= slog.LevelError:
		return sentry.LevelError
	case level >= slog.LevelWarn:
		return sentry.LevelWarning
	case level >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}

// Convenience functions that use the default logger

// Info logs at info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level and sends to Sentry.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// CapturePanic captures a panic value and sends it to Sentry.
// It should be called from a recover() handler.
// Returns the panic value for re-panicking if desired.
func CapturePanic(panicValue any, ctx ...any) any {
	if panicValue == nil {
		return nil
	}

	msg := fmt.Sprintf("panic: %v", panicValue)
	args := append([]any{"panic", panicValue}, ctx...)
	Default().Error(msg, args...)

	if SentryEnabled() {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
			scope.SetTag("type", "panic")
			for i := 0; i < len(ctx)-1; i += 2 {
				if key, ok := ctx[i].(string); ok {
					scope.SetExtra(key, ctx[i+1])
				}
			}
			if err, ok := panicValue.(error); ok {
				sentry.CaptureException(err)
			} else {
				sentry.CaptureMessage(msg)
			}
		})

		// Flush immediately since we might crash
		sentry.Flush(2 * time.Second)
	}

	return panicValue
}
