package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Operations     *prometheus.CounterVec
	OperationErrs  *prometheus.CounterVec
	DeviceCalls    *prometheus.CounterVec
	DeviceLatency  prometheus.Histogram
	HeldValue      prometheus.Gauge
	EngineFloat    prometheus.Gauge
	JournalRecords prometheus.Counter
}

var (
	once sync.Once
	m    *Metrics
)

// Get registers the collectors on the default registry exactly once.
func Get() *Metrics {
	once.Do(func() {
		m = &Metrics{
			Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "solar_operations_total",
				Help: "Committed engine operations by op name.",
			}, []string{"op"}),
			OperationErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "solar_operation_errors_total",
				Help: "Rejected engine operations by op name.",
			}, []string{"op"}),
			DeviceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "solar_device_calls_total",
				Help: "Device dispatch attempts by endpoint and outcome.",
			}, []string{"endpoint", "outcome"}),
			DeviceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "solar_device_call_seconds",
				Help:    "Device HTTP round-trip latency.",
				Buckets: prometheus.DefBuckets,
			}),
			HeldValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "solar_wallet_held_value",
				Help: "Total value held by the balance ledger.",
			}),
			EngineFloat: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "solar_engine_float_value",
				Help: "Value the booking engine holds against refunds and payouts.",
			}),
			JournalRecords: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "solar_journal_records_total",
				Help: "Records appended to the operation journal.",
			}),
		}
		prometheus.MustRegister(
			m.Operations, m.OperationErrs,
			m.DeviceCalls, m.DeviceLatency,
			m.HeldValue, m.EngineFloat, m.JournalRecords,
		)
	})
	return m
}
