// Package metrics holds the service's Prometheus collectors.
// Collectors are package-level so every layer can record without plumbing;
// registration is explicit and happens once from main.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mailrag"

var registerOnce sync.Once

// Register registers all collectors with reg. Subsequent calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		all := embeddingCollectors()
		all = append(all, ragCollectors()...)
		all = append(all, httpRequestDuration, httpRequestsTotal)
		reg.MustRegister(all...)
	})
}
