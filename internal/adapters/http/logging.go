package http

import (
	"context"
	"log/slog"
)

// httpLogger returns the adapter-scoped logger. The service attribute is
// already attached by the runtime's root logger.
func httpLogger() *slog.Logger {
	return slog.Default().With("module", "http", "layer", "adapter")
}

// logHTTPOperationError records a failed handler outcome with the request
// correlation id. Client errors log as warnings, server errors as errors.
func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	attrs := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}

	logger := httpLogger()
	if statusCode >= 500 {
		logger.ErrorContext(ctx, "http operation failed", attrs...)
		return
	}
	logger.WarnContext(ctx, "http operation failed", attrs...)
}
