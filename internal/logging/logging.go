// Package logging configures the single process-wide logging facility
// spec.md §6 allows as the engine's only permitted global state. It
// mirrors original_source/src/maverick/logging.py's env-driven
// dev-console-vs-production-JSON split, ported onto log/slog since the
// teacher's own runtime package constructors (e.g. NewExecutor) already
// take a *slog.Logger rather than reaching for structlog-equivalent
// third-party bindings.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatEnvVar = "MAVERICK_LOG_FORMAT"
	LevelEnvVar  = "MAVERICK_LOG_LEVEL"
)

// Configure builds the process-wide *slog.Logger and installs it as
// slog's default, to be called exactly once at startup (spec.md §6:
// "configured once per process ... never mutated thereafter").
func Configure() *slog.Logger {
	level := parseLevel(os.Getenv(LevelEnvVar))
	var handler slog.Handler
	if strings.EqualFold(os.Getenv(FormatEnvVar), "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(raw string) slog.Level {
	switch strings.ToUpper(raw) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForRun binds workflow_name and run-scoped fields, the Go analogue of
// the source's bind_context(workflow_id=...).
func ForRun(logger *slog.Logger, workflowName, runID string) *slog.Logger {
	return logger.With("workflow_name", workflowName, "run_id", runID)
}

// ForStep further binds the step path being executed.
func ForStep(logger *slog.Logger, stepPath string) *slog.Logger {
	return logger.With("step_path", stepPath)
}

type ctxKey struct{}

// WithContext stashes logger on ctx so deeply nested calls (component
// implementations) can retrieve a properly bound logger without it
// being threaded through every function signature.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger bound by WithContext, falling back
// to slog.Default() when none was bound.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
