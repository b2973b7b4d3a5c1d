package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

var (
	// Scheduler metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_ticks_total",
			Help: "Total number of polling ticks",
		},
		[]string{"result"}, // result: ok, fetch_error, panic
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_tick_duration_seconds",
			Help:    "Polling tick latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Alert metrics
	AlertBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alert_batches_total",
			Help: "Total number of alert batches by outcome",
		},
		[]string{"outcome"}, // outcome: sent, suppressed, failed
	)

	BreachesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_breaches_total",
			Help: "Total number of threshold breaches observed",
		},
		[]string{"class"},
	)

	// Delivery metrics
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_delivery_attempts_total",
			Help: "Total number of single send attempts per channel",
		},
		[]string{"channel", "result"}, // result: ok, error
	)

	// Digest metrics
	DigestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_digests_total",
			Help: "Total number of digest builds by result",
		},
		[]string{"result"}, // result: sent, built, failed
	)

	// Resource gauges
	ReserveBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_reserve_balance",
			Help: "Last observed reserve balance in whole units",
		},
	)

	EnergyRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_energy_remaining_ratio",
			Help: "Last observed remaining energy over limit",
		},
	)

	BandwidthRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_bandwidth_remaining_ratio",
			Help: "Last observed remaining bandwidth over limit",
		},
	)
)

// ObserveSnapshot updates the resource gauges.
func ObserveSnapshot(s *model.ResourceSnapshot) {
	ReserveBalance.Set(s.Balance())
	EnergyRatio.Set(s.EnergyRatio())
	BandwidthRatio.Set(s.BandwidthRatio())
}

// ObserveAttempt records one send attempt. It matches the dispatcher's
// attempt hook signature.
func ObserveAttempt(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DeliveryAttemptsTotal.WithLabelValues(channel, result).Inc()
}
