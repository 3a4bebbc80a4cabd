package streaming

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	bytesEmitted prometheus.Counter
	bytesSkipped prometheus.Counter
	active       prometheus.Gauge
	responses    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bytesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tgstream",
			Subsystem: "stream",
			Name:      "bytes_emitted_total",
			Help:      "Bytes written to clients from the requested window.",
		}),
		bytesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tgstream",
			Subsystem: "stream",
			Name:      "bytes_skipped_total",
			Help:      "Bytes fetched from the backend and discarded before the requested window.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tgstream",
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Backend chunk-stream sessions currently open.",
		}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tgstream",
			Subsystem: "stream",
			Name:      "responses_total",
			Help:      "Proxy responses by HTTP status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) emitted(n int) {
	if m != nil && n > 0 {
		m.bytesEmitted.Add(float64(n))
	}
}

func (m *Metrics) skipped(n int) {
	if m != nil && n > 0 {
		m.bytesSkipped.Add(float64(n))
	}
}

func (m *Metrics) opened() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.active.Dec()
	}
}

func (m *Metrics) response(status int) {
	if m != nil {
		m.responses.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
