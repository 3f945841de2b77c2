// Package metrics documents the Prometheus metrics exposed by the
// aggregator. All metrics are defined in their owning packages (fetcher,
// aggregator, store, freshness) via promauto to keep them next to the code
// paths they observe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the aggregator.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Fetch metrics (pkg/fetcher):
//   - pncp_requests_total{status} (Counter): Requests by outcome
//     (200, 204, 429, malformed, network_error, other status codes)
//   - pncp_request_duration_seconds (Histogram): Single-request latency
//   - pncp_retries_total (Counter): Retry attempts
//   - pncp_retry_exhausted_total (Counter): Requests that ran out of retries
//
// Aggregation metrics (pkg/aggregator):
//   - pncp_partition_failures_total (Counter): Partitions that failed entirely
//   - pncp_aggregation_duration_seconds (Histogram): Full fan-out cycle time
//
// Store metrics (pkg/store):
//   - pncp_store_upserts_total{outcome} (Counter): Upserted rows (ok, error, skipped)
//   - pncp_store_reads_total{outcome} (Counter): Store reads (ok, error)
//
// Freshness metrics (pkg/freshness):
//   - pncp_freshness_hits_total (Counter): Queries served without a refresh
//   - pncp_freshness_misses_total{reason} (Counter): Forced refreshes
//     (absent, stale, error)
//
// Example Prometheus Queries:
//
//   # Refresh hit rate
//   rate(pncp_freshness_hits_total[15m]) /
//   (rate(pncp_freshness_hits_total[15m]) + sum(rate(pncp_freshness_misses_total[15m])))
//
//   # Partition failure rate
//   rate(pncp_partition_failures_total[15m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(pncp_request_duration_seconds_bucket[5m]))
