package observability

import (
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

// Instruments are the metric handles a provider hands out by key. Keys
// without an instrument resolve to no-ops.
type Instruments struct {
	Counters   map[observability.MetricKey]observability.Counter
	Histograms map[observability.MetricKey]observability.Histogram
}

// New assembles an Observability provider from the supplied tracer, logger
// and metric instruments. Nil parts fall back to no-ops.
func New(tracer observability.Tracer, logger observability.Logger, inst Instruments) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	m := &registeredMetrics{
		counters:   make(map[observability.MetricKey]observability.Counter, len(inst.Counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(inst.Histograms)),
	}
	for k, v := range inst.Counters {
		if v != nil {
			m.counters[k] = v
		}
	}
	for k, v := range inst.Histograms {
		if v != nil {
			m.histograms[k] = v
		}
	}

	return &provider{tracer: tracer, logger: logger, metrics: m}
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }
