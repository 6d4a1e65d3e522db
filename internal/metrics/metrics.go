// Package metrics exposes Prometheus instrumentation for the engine:
//
//   - engine_decisions_total{outcome}        decisions processed (executed|rejected|expired|hold)
//   - engine_executions_total{outcome}       per-user execution steps (succeeded|skipped|failed)
//   - engine_positions_closed_total{reason}  closes by close reason
//   - engine_realized_pnl_usd                cumulative realized PnL booked by this process
//   - engine_open_positions                  open positions seen by the last PnL refresh
//   - engine_notification_failures_total{sender}
//   - engine_sweep_duration_seconds{sweep}
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_decisions_total",
			Help: "Decisions processed by final outcome",
		},
		[]string{"outcome"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_executions_total",
			Help: "Per-user decision execution steps by outcome",
		},
		[]string{"outcome"},
	)

	positionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_positions_closed_total",
			Help: "Closed positions by close reason",
		},
		[]string{"reason"},
	)

	realizedPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_realized_pnl_usd",
			Help: "Cumulative realized PnL booked by this process",
		},
	)

	openPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open positions seen by the last floating PnL refresh",
		},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_notification_failures_total",
			Help: "Notifications that could not be delivered",
		},
		[]string{"sender"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_sweep_duration_seconds",
			Help:    "Duration of engine batch operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"sweep"},
	)
)

// RecordDecision counts a processed decision.
func RecordDecision(outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordExecutions adds per-user execution counts.
func RecordExecutions(succeeded, skipped, failed int) {
	executionsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	executionsTotal.WithLabelValues("skipped").Add(float64(skipped))
	executionsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordClose counts a closed position and its realized PnL.
func RecordClose(reason string, pnl float64) {
	positionsClosedTotal.WithLabelValues(reason).Inc()
	realizedPnL.Add(pnl)
}

// SetOpenPositions records the open position count.
func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

// RecordNotificationFailure counts a failed delivery.
func RecordNotificationFailure(sender string) {
	notificationFailures.WithLabelValues(sender).Inc()
}

// ObserveSweep records how long a batch operation took.
func ObserveSweep(sweep string, start time.Time) {
	sweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
