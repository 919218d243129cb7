package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the agent's Prometheus collectors. It is created once in
// main with the process registry and handed to engines through their
// constructors; tests use NewNop.
type Metrics struct {
	SyncedEntities  *prometheus.CounterVec
	SyncRuns        *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	SyncLastSuccess prometheus.Gauge

	QueueDepth   prometheus.Gauge
	QueueReplays *prometheus.CounterVec

	PromoCalcs *prometheus.CounterVec

	GateSalePermitted prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SyncedEntities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "sync_entities_total",
			Help:      "Entities upserted into the local store, by entity type",
		}, []string{"entity"}),
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "sync_runs_total",
			Help:      "Full sync runs, by result status",
		}, []string{"status"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pos",
			Name:      "sync_duration_seconds",
			Help:      "Elapsed time of full sync runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SyncLastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pos",
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful sync",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pos",
			Name:      "offline_queue_depth",
			Help:      "Operations still eligible for replay",
		}),
		QueueReplays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "offline_queue_replays_total",
			Help:      "Replay attempts, by outcome",
		}, []string{"outcome"}),
		PromoCalcs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Name:      "promo_calculations_total",
			Help:      "Promotion reconciliation outcomes",
		}, []string{"outcome"}),
		GateSalePermitted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pos",
			Name:      "cash_gate_sale_permitted",
			Help:      "1 when the cash-session gate currently permits a sale",
		}),
	}
}

// NewNop returns metrics backed by a private registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
