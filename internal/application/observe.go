package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const SpanPrefix = "UC."

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeIgnored = "ignored"
)

// Instrument wraps each use case execution in one span, the RED metrics
// usecase_requests_total{use_case,outcome} and usecase_duration_seconds{use_case},
// and a single "use_case_done" log line per run.
type Instrument struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewInstrument(tel observability.Observability, service string) *Instrument {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Instrument{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (p *Instrument) Logger() observability.Logger { return p.log }

// Count records a run that never started, such as an ignored event.
func (p *Instrument) Count(useCase, outcome string) {
	p.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

// Run is one instrumented execution. It is not safe for concurrent use.
type Run struct {
	instr   *Instrument
	useCase string
	ctx     context.Context
	span    trace.Span
	logger  observability.Logger
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Start opens span "UC.<name>" and returns a context carrying it together
// with a logger bound to the use case.
func (p *Instrument) Start(ctx context.Context, useCase, name string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, p.log).With(observability.F("use_case", useCase))

	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := p.tracer.Start(ctx, SpanPrefix+name, attrs...)
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		instr:   p,
		useCase: useCase,
		ctx:     ctx,
		span:    span,
		logger:  logger,
		start:   time.Now(),
		outcome: OutcomeSuccess,
		status:  "OK",
	}
}

func (r *Run) Span() trace.Span { return r.span }

func (r *Run) Logger() observability.Logger { return r.logger }

// SetStatus overrides the status text without changing the outcome.
func (r *Run) SetStatus(status string) { r.status = status }

// Field adds a field to the closing log line.
func (r *Run) Field(key string, value any) { r.fields = append(r.fields, observability.F(key, value)) }

// Fail marks the run as failed with status and hands err back.
func (r *Run) Fail(status string, err error) error {
	r.outcome, r.status = OutcomeError, status
	return err
}

// End closes the span and records metrics and the summary log line.
func (r *Run) End(err error) {
	if err != nil && r.outcome == OutcomeSuccess {
		r.outcome, r.status = OutcomeError, "ERROR"
	}
	lat := time.Since(r.start).Seconds()

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.instr.Count(r.useCase, r.outcome)
	r.instr.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	fields = append(fields, observability.TraceFields(r.ctx)...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}
