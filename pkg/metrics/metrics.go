// Package metrics provides Prometheus metrics for the battalert daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed monitor ticks, scheduled or manual.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battalert_ticks_total",
		Help: "Total number of completed monitor ticks",
	})

	// TicksSkipped counts scheduled ticks dropped because one was still running.
	TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battalert_ticks_skipped_total",
		Help: "Total number of scheduled ticks skipped because a tick was in flight",
	})

	// QueryErrors counts failed power source queries.
	QueryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battalert_query_errors_total",
		Help: "Total number of failed power source queries",
	})

	// ConfigErrors counts ticks or starts refused because of invalid settings.
	ConfigErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battalert_config_errors_total",
		Help: "Total number of invalid settings snapshots seen by the monitor",
	})

	// AlertsRaised counts alert requests by kind (low, high).
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battalert_alerts_raised_total",
		Help: "Total number of alerts raised",
	}, []string{"kind"})

	// DeliveryErrors counts failed deliveries per sink.
	DeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battalert_delivery_errors_total",
		Help: "Total number of failed alert deliveries",
	}, []string{"sink"})

	// SampleDuration tracks how long a power source query takes.
	SampleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "battalert_sample_duration_seconds",
		Help:    "Duration of power source queries in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Capacity is the last observed capacity per source.
	Capacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battalert_capacity_percent",
		Help: "Last observed battery capacity in percent",
	}, []string{"source"})

	// Charging is 1 while the source is on external power.
	Charging = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battalert_charging",
		Help: "Whether the power source is on external power (1) or not (0)",
	}, []string{"source"})

	// MonitorRunning is 1 while the monitor is running.
	MonitorRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battalert_monitor_running",
		Help: "Whether the monitor is running (1) or stopped (0)",
	})
)
