package prometrics

import (
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Standard registers every instrument the service reports and returns them keyed
// for the observability provider.
func Standard(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
			"Use case executions by outcome.", "use_case", "outcome"),
		observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
			"HTTP requests served.", "method", "route", "status"),
		observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
			"Calls to downstream dependencies.", "peer", "endpoint", "outcome"),
		observability.MOutboxDispatch: r.Counter(string(observability.MOutboxDispatch),
			"Outbox record dispatch attempts.", "kind", "outcome"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
			"Use case latency.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
			"HTTP request latency.", prometheus.DefBuckets, "method", "route"),
		observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
			"Downstream call latency.", prometheus.DefBuckets, "peer", "endpoint"),
	}
	return counters, histograms
}
