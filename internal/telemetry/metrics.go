// Package telemetry provides logging setup and Prometheus metrics for runledger.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<RL_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/test-runs/:run_id)
// rather than the raw URL so run ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/runledger/runledger/internal/safego"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Ingestion outcomes.
const (
	OutcomeCreated          = "created"
	OutcomeExisting         = "existing"
	OutcomeValidationFailed = "validation_failed"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

// TestRunIngestionsTotal counts ingestion calls by outcome. A high existing/created
// ratio means clients are retrying aggressively.
//
//	sum by (outcome) (rate(testrun_ingestions_total[5m]))
var TestRunIngestionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "testrun_ingestions_total",
		Help: "Total number of test run ingestion calls, by outcome.",
	},
	[]string{"outcome"},
)

// TokenResolutionsTotal counts bearer token resolutions by result (ok, miss, error).
// A sustained miss rate usually means a revoked or mistyped token in some pipeline.
var TokenResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "token_resolutions_total",
		Help: "Total number of project token resolutions, by result.",
	},
	[]string{"result"},
)

// TenantProvisioningTotal counts organization, project, and token creation attempts.
var TenantProvisioningTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenant_provisioning_total",
		Help: "Total number of provisioning operations, by entity and result.",
	},
	[]string{"entity", "result"},
)

// AuditEntriesTotal counts audit entries handed to shippers, by result (shipped, failed).
var AuditEntriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_entries_total",
		Help: "Total number of audit entries shipped, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections tracks open connections in the shared pool. Sampled by
// StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is done
// or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	})
}
