package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer bound to the global provider; install one with
// InitProvider first or spans are dropped.
func New(name string) observability.Tracer {
	if name == "" {
		name = "minishop-orders"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
