// Package observability holds the Prometheus metrics shared across the
// engine, registered as promauto globals so every package can record
// against them without threading a registry through constructors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency tracks round-trip time for every StateStore call.
	StoreLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cgm_store_latency_seconds",
		Help:    "Latency of StateStore operations against Redis",
		Buckets: prometheus.DefBuckets,
	})

	// TickDuration tracks the wall-clock duration of one scheduler tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cgm_scheduler_tick_duration_seconds",
		Help:    "Duration of one 1Hz scheduler tick, including claim",
		Buckets: prometheus.DefBuckets,
	})

	// DueCount tracks how many activities were due on the last tick.
	DueCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cgm_scheduler_due_count",
		Help: "Number of activities due for processing on the last tick",
	})

	// ActiveProcessors tracks in-flight ActivityProcessor goroutines.
	ActiveProcessors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cgm_scheduler_active_processors",
		Help: "Number of ActivityProcessor goroutines currently running",
	})

	// CircuitState is set to 1, under the label of the breaker's state,
	// on each tick the tick-loop circuit breaker skips.
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cgm_scheduler_circuit_state",
		Help: "Set to 1 under the tick loop circuit breaker's state label when a tick is skipped",
	}, []string{"state"})

	// ProcessorOutcomes counts each rescheduled, rate-limited or
	// store-error outcome of ActivityProcessor.ProcessOne, by outcome
	// label. Terminations are counted in EndReasons instead.
	ProcessorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_processor_outcomes_total",
		Help: "Outcome of each ActivityProcessor cycle",
	}, []string{"outcome"})

	// EndReasons counts activity terminations by reason.
	EndReasons = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_activity_end_reasons_total",
		Help: "Count of activity terminations by reason",
	}, []string{"reason"})

	// PushLatency tracks round-trip time for APNs push attempts.
	PushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cgm_push_latency_seconds",
		Help:    "Latency of APNs push attempts",
		Buckets: prometheus.DefBuckets,
	})

	// PushesSent counts APNs pushes by kind and result.
	PushesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_push_sent_total",
		Help: "APNs pushes attempted, by kind and outcome",
	}, []string{"kind", "result"})

	// AlertsSent counts alerts emitted by AlertPolicy that were attached
	// to an update push, counted before the push is attempted.
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_alerts_sent_total",
		Help: "Alerts attached to a Live Activity update, by title",
	}, []string{"title"})

	// UpstreamErrors counts fetcher errors by taxonomy class.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_upstream_errors_total",
		Help: "UpstreamFetcher errors by class",
	}, []string{"class"})

	// WidgetTokensRemoved counts widget tokens dropped on terminal APNs codes.
	WidgetTokensRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgm_widget_tokens_removed_total",
		Help: "Widget tokens removed after a terminal APNs response",
	}, []string{"environment"})
)
