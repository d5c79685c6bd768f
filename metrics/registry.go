// Package metrics exposes path resolution metrics to Prometheus.
//
// Metrics are opt-in: nothing is collected until InitRegistry is called, and
// constructors return nil while disabled so callers fall back to a no-op.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry enables metrics collection with a private registry.
// Safe to call more than once.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry; nil when metrics are disabled
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called
func IsEnabled() bool {
	return GetRegistry() != nil
}
