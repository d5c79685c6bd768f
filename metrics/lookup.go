package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LookupMetrics records the outcome of path resolutions.
// Implementations must be safe for concurrent use.
type LookupMetrics interface {
	// ObserveLookup counts one completed lookup by outcome ("found",
	// "parent-found", "not-found") and records how many symbolic links it
	// followed
	ObserveLookup(status string, hops int)

	// RecordTooManyLinks counts a lookup aborted by the link depth bound
	RecordTooManyLinks()
}

type lookupMetrics struct {
	lookups     *prometheus.CounterVec
	hops        prometheus.Histogram
	tooManyLink prometheus.Counter
}

// NewLookupMetrics registers the lookup metrics with the global registry.
// Returns nil when metrics are disabled.
func NewLookupMetrics() LookupMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewLookupMetricsWith(GetRegistry())
}

// NewLookupMetricsWith registers the lookup metrics with reg
func NewLookupMetricsWith(reg prometheus.Registerer) LookupMetrics {
	return &lookupMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "memfs_lookups_total",
				Help: "Total number of path lookups by outcome",
			},
			[]string{"status"},
		),
		hops: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memfs_lookup_link_hops",
				Help:    "Symbolic links followed per lookup",
				Buckets: []float64{0, 1, 2, 4, 8},
			},
		),
		tooManyLink: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "memfs_lookup_too_many_links_total",
				Help: "Total number of lookups aborted for exceeding the symbolic link depth",
			},
		),
	}
}

func (m *lookupMetrics) ObserveLookup(status string, hops int) {
	m.lookups.WithLabelValues(status).Inc()
	m.hops.Observe(float64(hops))
}

func (m *lookupMetrics) RecordTooManyLinks() {
	m.tooManyLink.Inc()
}
