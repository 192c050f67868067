package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var defaultLogger *slog.Logger

type ctxKey struct{}

// Initialize sets up the global logger with the specified level and format
func Initialize(level, format string) {
	InitializeWriter(os.Stdout, level, format)
}

// InitializeWriter is Initialize with an explicit destination.
func InitializeWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Initialize("info", "text")
	}
	return defaultLogger
}

// NewContext stores a request-scoped logger in ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return Get()
}

// With attaches attributes to the request-scoped logger in ctx.
func With(ctx context.Context, args ...any) context.Context {
	return NewContext(ctx, FromContext(ctx).With(args...))
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

// WithService returns a logger with service name attached
func WithService(serviceName string) *slog.Logger {
	return Get().With("service", serviceName)
}

// EnterMethod logs method entry (process tracking)
func EnterMethod(ctx context.Context, methodName string, args ...any) {
	allArgs := append([]any{"method", methodName, "event", "enter"}, args...)
	FromContext(ctx).DebugContext(ctx, "→ Method entered", allArgs...)
}

// ExitMethod logs method exit (process tracking)
func ExitMethod(ctx context.Context, methodName string, args ...any) {
	allArgs := append([]any{"method", methodName, "event", "exit"}, args...)
	FromContext(ctx).DebugContext(ctx, "← Method exited", allArgs...)
}

// ExitMethodWithError logs a failed method exit. Rejections the caller can
// act on (conflicts, bad windows) are warnings, everything else is an error.
func ExitMethodWithError(ctx context.Context, methodName string, err error, expected bool, args ...any) {
	allArgs := append([]any{"method", methodName, "event", "exit", "error", err}, args...)
	if expected {
		FromContext(ctx).WarnContext(ctx, "← Method rejected", allArgs...)
		return
	}
	FromContext(ctx).ErrorContext(ctx, "← Method exited with error", allArgs...)
}

// LedgerChange records a committed ledger mutation at info level.
func LedgerChange(ctx context.Context, op, entryID, unitID, holderID string, args ...any) {
	allArgs := append([]any{"op", op, "entry_id", entryID, "unit_id", unitID, "holder_id", holderID}, args...)
	FromContext(ctx).InfoContext(ctx, "Ledger updated", allArgs...)
}

// DatabaseCall logs a statement about to run against the database.
func DatabaseCall(operation, query string, args ...any) {
	allArgs := append([]any{"operation", operation, "query", query}, args...)
	Get().Debug("→ Database call", allArgs...)
}

// DatabaseResult logs the outcome of a DatabaseCall.
func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	allArgs := append([]any{"operation", operation, "rows_affected", rowsAffected}, args...)
	if err != nil {
		Get().Error("← Database call failed", append(allArgs, "error", err)...)
		return
	}
	Get().Debug("← Database call succeeded", allArgs...)
}

// ExternalServiceCall logs external service call (debug log for external resources)
func ExternalServiceCall(service, operation string, args ...any) {
	allArgs := append([]any{"service", service, "operation", operation}, args...)
	Get().Debug("→ External service call", allArgs...)
}

// ExternalServiceResult logs external service result (debug log for external resources)
func ExternalServiceResult(service, operation string, err error, args ...any) {
	allArgs := append([]any{"service", service, "operation", operation}, args...)
	if err != nil {
		allArgs = append(allArgs, "error", err)
		Get().Error("← External service call failed", allArgs...)
	} else {
		Get().Debug("← External service call succeeded", allArgs...)
	}
}

// HTTPRequest logs a completed HTTP request.
func HTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	args := []any{"http_method", method, "route", route, "status", status, "duration_ms", elapsed.Milliseconds()}
	switch {
	case status >= 500:
		FromContext(ctx).ErrorContext(ctx, "HTTP request", args...)
	case status >= 400:
		FromContext(ctx).WarnContext(ctx, "HTTP request", args...)
	default:
		FromContext(ctx).InfoContext(ctx, "HTTP request", args...)
	}
}
