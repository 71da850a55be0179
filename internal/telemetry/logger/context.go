package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey    contextKey = "docguard.logger"
	operationKey contextKey = "docguard.operation"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns slog.Default() if none is set.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithOperation tags the context with the name of the running operation
// (e.g. a CLI command).
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext extracts the operation name from context.
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

// L is a shorthand for FromContext that also enriches the logger with the
// operation name from the context.
func L(ctx context.Context) *slog.Logger {
	l := FromContext(ctx)
	if op := OperationFromContext(ctx); op != "" {
		l = l.With("op", op)
	}
	return l
}
