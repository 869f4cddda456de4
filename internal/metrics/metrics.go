// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records the sync engine's remote traffic.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	consecutive   prometheus.Gauge
	trips         prometheus.Counter
	writeItems    *prometheus.CounterVec
}

// New registers the collectors on reg, labelled with the connection name.
func New(reg prometheus.Registerer, connection string) *Metrics {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"connection": connection}, reg))

	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procwatch",
			Name:      "fetches_total",
			Help:      "Process image fetches by result.",
		}, []string{"result"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "procwatch",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of process image fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		consecutive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "procwatch",
			Name:      "consecutive_failures",
			Help:      "Current failure counter of the breaker.",
		}),
		trips: f.NewCounter(prometheus.CounterOpts{
			Namespace: "procwatch",
			Name:      "breaker_trips_total",
			Help:      "Times the breaker disabled polling.",
		}),
		writeItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procwatch",
			Name:      "write_items_total",
			Help:      "Aggregated write items by result.",
		}, []string{"result"}),
	}
}

// ObserveFetch records one fetch round-trip.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// SetConsecutiveFailures mirrors the governor counter.
func (m *Metrics) SetConsecutiveFailures(n int) {
	if m == nil {
		return
	}
	m.consecutive.Set(float64(n))
}

// BreakerTripped counts one trip.
func (m *Metrics) BreakerTripped() {
	if m == nil {
		return
	}
	m.trips.Inc()
}

// ObserveWrites records the outcome of one aggregated write.
func (m *Metrics) ObserveWrites(ok, failed int) {
	if m == nil {
		return
	}
	m.writeItems.WithLabelValues("ok").Add(float64(ok))
	m.writeItems.WithLabelValues("error").Add(float64(failed))
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
