package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts consumer loop outcomes per queue.
type Metrics struct {
	deliveries  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the bus collectors with reg. A nil registerer yields
// unregistered collectors, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Deliveries received by a consumer queue.",
		}, []string{"queue", "topic", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "bus",
			Name:      "handler_failures_total",
			Help:      "Handler attempts that returned an error.",
		}, []string{"queue", "topic"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "bus",
			Name:      "dead_letters_total",
			Help:      "Events moved to the dead-letter channel.",
		}, []string{"queue", "topic"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "commerce",
			Subsystem: "bus",
			Name:      "handler_duration_seconds",
			Help:      "Time spent applying an event, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.failures, m.deadLetters, m.duration)
	}
	return m
}

func (m *Metrics) observe(queue, topic, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(queue, topic, outcome).Inc()
	m.duration.WithLabelValues(queue, topic).Observe(time.Since(started).Seconds())
}

func (m *Metrics) failed(queue, topic string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(queue, topic).Inc()
}

func (m *Metrics) deadLettered(queue, topic string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(queue, topic).Inc()
}
