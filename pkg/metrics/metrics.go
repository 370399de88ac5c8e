// Package metrics exposes the Prometheus registry shared by every package.
//
// Collectors are declared with promauto next to the code that updates them
// (client, batch, orchestrator, reduce, store, scheduler, httpapi). This
// package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer promauto collectors land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is what Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics reference
//
// Remote API (pkg/client):
//   - eld_remote_requests_total{status} (Counter)
//   - eld_remote_request_duration_seconds (Histogram)
//   - eld_remote_errors_total{class} (Counter): client, server, timeout, network, decode
//
// Batch fetch (pkg/batch):
//   - eld_batch_entities_total{outcome} (Counter): success, failure
//   - eld_batch_duration_seconds (Histogram)
//
// Retry orchestration (pkg/orchestrator):
//   - eld_retry_attempts_total{phase} (Counter): batch, individual
//   - eld_retry_recovered_total (Counter)
//   - eld_runs_total{outcome} (Counter): complete, partial, failed, roster_error
//
// Reduction (pkg/reduce):
//   - eld_reduce_logs_removed_total{rule} (Counter)
//
// Store (pkg/store):
//   - eld_store_operations_total{operation,status} (Counter)
//   - eld_store_record_bytes{tenant} (Gauge)
//
// Scheduler (pkg/scheduler):
//   - eld_scheduler_sweeps_total{outcome} (Counter): complete, skipped, error
//
// HTTP API (internal/httpapi):
//   - eld_http_requests_total{route,code} (Counter)
//
// Example queries:
//
//	# Share of companies still failing after all retries
//	sum(rate(eld_batch_entities_total{outcome="failure"}[1h])) /
//	sum(rate(eld_batch_entities_total[1h]))
//
//	# Noise removed per rule
//	topk(5, increase(eld_reduce_logs_removed_total[1d]))
//
//	# P95 remote latency
//	histogram_quantile(0.95, rate(eld_remote_request_duration_seconds_bucket[5m]))
