package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type loggerKey struct{}

// With stores logger on ctx for request or event scoped logging.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr returns the context logger, or fallback when ctx carries none.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}

// Extend stores the ctx logger (or fallback) enriched with fields, so nested
// scopes such as relay record then event handler accumulate their fields.
func Extend(ctx context.Context, fallback observability.Logger, fields ...observability.Field) context.Context {
	logger := FromOr(ctx, fallback)
	if logger == nil {
		logger = observability.NopLogger()
	}
	return With(ctx, logger.With(fields...))
}
