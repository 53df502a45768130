// Package metrics registers the Prometheus collectors the indexer exposes,
// using promauto.With(registry) so every collector self-registers at
// construction time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the indexer updates while dispatching
// events and fanning out recomputation. A nil *Registry is valid and every
// method on it is a no-op, so callers don't need to branch on whether
// metrics are enabled.
type Registry struct {
	eventsProcessed   *prometheus.CounterVec
	eventsSkipped     *prometheus.CounterVec
	recomputeRows     *prometheus.CounterVec
	invariantWarnings *prometheus.CounterVec
	packetsDelivered  *prometheus.CounterVec
}

// New registers the indexer's collectors against reg and returns a Registry
// wrapping them. Pass prometheus.NewRegistry() for tests, or the default
// global registry in production.
func New(reg *prometheus.Registry) *Registry {
	return &Registry{
		eventsProcessed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dvnstats_events_processed_total",
				Help: "Total number of events successfully dispatched, by chain and event kind.",
			},
			[]string{"chain", "kind"},
		),
		eventsSkipped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dvnstats_events_skipped_total",
				Help: "Total number of events skipped without a store write, by chain, kind, and reason.",
			},
			[]string{"chain", "kind", "reason"},
		),
		recomputeRows: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dvnstats_recompute_rows_total",
				Help: "Total number of OAppSecurityConfig rows recomputed by a fan-out, by chain and eid.",
			},
			[]string{"chain", "eid"},
		),
		invariantWarnings: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dvnstats_invariant_warnings_total",
				Help: "Total number of InvariantWarning diagnostics emitted, by kind.",
			},
			[]string{"kind"},
		),
		packetsDelivered: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dvnstats_packets_delivered_total",
				Help: "Total number of PacketDelivered events processed, by chain.",
			},
			[]string{"chain"},
		),
	}
}

func (r *Registry) EventProcessed(chain, kind string) {
	if r == nil {
		return
	}
	r.eventsProcessed.WithLabelValues(chain, kind).Inc()
}

func (r *Registry) EventSkipped(chain, kind, reason string) {
	if r == nil {
		return
	}
	r.eventsSkipped.WithLabelValues(chain, kind, reason).Inc()
}

func (r *Registry) RecomputeRows(chain, eid string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.recomputeRows.WithLabelValues(chain, eid).Add(float64(n))
}

func (r *Registry) InvariantWarning(kind string) {
	if r == nil {
		return
	}
	r.invariantWarnings.WithLabelValues(kind).Inc()
}

func (r *Registry) PacketDelivered(chain string) {
	if r == nil {
		return
	}
	r.packetsDelivered.WithLabelValues(chain).Inc()
}
