// Package metrics exposes prometheus collectors for dependency walks, the
// value cache and update flushes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statecore"

type Metrics struct {
	Walks           prometheus.Counter
	WalkErrors      *prometheus.CounterVec
	Visited         prometheus.Counter
	Reconciliations *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	Invalidations   prometheus.Counter
	Pruned          prometheus.Counter
	Flushes         prometheus.Counter
	Notifications   prometheus.Counter
	FlushErrors     prometheus.Counter
	BatchSize       prometheus.Histogram
}

// New registers the collectors with reg. A nil reg yields unregistered
// collectors, which is what tests and one-shot CLI runs want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Walks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walks_total",
			Help:      "Dependency walks started.",
		}),
		WalkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_errors_total",
			Help:      "Dependency walks that failed, by reason.",
		}, []string{"reason"}),
		Visited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_visited_total",
			Help:      "Addresses visited by dependency walks.",
		}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_index_changes_total",
			Help:      "List indexes touched by reconciliation, by set.",
		}, []string{"set"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Resolutions served from a fresh cache entry.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Resolutions that had to compute a value.",
		}),
		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache entries marked dirty.",
		}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addresses_pruned_total",
			Help:      "Addresses dropped because their list element was deleted.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Coalesced update flushes.",
		}),
		Notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Bindings notified across all flushes.",
		}),
		FlushErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Errors raised while applying a flush.",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_batch_size",
			Help:      "Distinct addresses per flush.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
