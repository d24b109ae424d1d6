package workerpresentation

import (
	"context"
	"time"

	"github.com/google/uuid"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// aggregated events name the aggregate they belong to.
type aggregated interface {
	AggregateID() string
}

// WithEventContext injects a logger for one background event execution. It
// extends the logger already on ctx (the relay puts record fields there) or
// base, adding trace ids when ctx carries a span, an event_id (generated when
// attrs has none) and the caller's low-cardinality attrs.
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	fields := make([]observability.Field, 0, len(attrs)+3)
	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))
	fields = append(fields, observability.TraceFields(ctx)...)
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.Extend(ctx, base, fields...)
}

type instrumented struct {
	next domoutbox.Subscriber
	base observability.Logger
}

// Instrumented wraps sub so every handler it registers runs with an event
// scoped logger and reports its outcome in one event_handled log line.
func Instrumented(sub domoutbox.Subscriber, base observability.Logger) domoutbox.Subscriber {
	if base == nil {
		base = observability.NopLogger()
	}
	return &instrumented{next: sub, base: base}
}

func (s *instrumented) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := map[string]string{"event": eventName}
		if a, ok := e.(aggregated); ok {
			attrs["aggregate_id"] = a.AggregateID()
		}
		ctx = WithEventContext(ctx, s.base, attrs)
		logger := logctx.FromOr(ctx, s.base)

		start := time.Now()
		err := h(ctx, e)
		latency := observability.F("latency_ms", time.Since(start).Milliseconds())
		if err != nil {
			logger.Warn("event_handled", latency, observability.F("outcome", "error"), observability.F("error", err.Error()))
			return err
		}
		logger.Debug("event_handled", latency, observability.F("outcome", "success"))
		return nil
	})
}
