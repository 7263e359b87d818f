package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "minichat"

// Ingest outcomes.
const (
	OutcomeApplied       = "applied"
	OutcomeDuplicate     = "duplicate"
	OutcomeMalformed     = "malformed"
	OutcomeRevokeMissing = "revoke_missing"
	OutcomeFailed        = "failed"
)

// Publish results.
const (
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultError   = "error"
	ResultDropped = "dropped"
)

type Metrics struct {
	Ingested       *prometheus.CounterVec
	Published      *prometheus.CounterVec
	Discovered     prometheus.Counter
	Sessions       prometheus.Gauge
	Peers          prometheus.Gauge
	WorkerRestarts *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	QueueLength    *prometheus.GaugeVec
	QueueCapacity  *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg.
// Tests pass a fresh prometheus.NewRegistry() to stay isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_messages_total",
			Help:      "Messages handed to the sync engine by source and outcome.",
		}, []string{"source", "outcome"}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_publish_total",
			Help:      "Transport publish attempts by result.",
		}, []string{"result"}),
		Discovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_sessions_total",
			Help:      "Private sessions created from an inbound topic.",
		}),
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Known sessions including the lobby.",
		}),
		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_peers",
			Help:      "Peers currently connected to the transport.",
		}),
		WorkerRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Supervised worker restarts after a failure.",
		}, []string{"worker"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Domain events lost because the fanout buffer was full.",
		}),
		QueueLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Items waiting in an internal channel.",
		}, []string{"queue"}),
		QueueCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_capacity",
			Help:      "Buffer size of an internal channel.",
		}, []string{"queue"}),
	}
}
