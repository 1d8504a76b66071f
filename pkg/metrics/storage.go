package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorageMetrics counts durable store failures that were absorbed by the caller.
type StorageMetrics struct {
	failures *prometheus.CounterVec
}

// NewStorageMetrics registers the storage metrics on the provided registerer.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	if reg == nil {
		return &StorageMetrics{}
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_failures_total",
		Help:      "Durable store operations that failed and were reported as notices.",
	}, []string{"op"})
	reg.MustRegister(failures)
	return &StorageMetrics{failures: failures}
}

// IncFailure increments the failure counter for op (get, set, remove).
func (s *StorageMetrics) IncFailure(op string) {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.WithLabelValues(normalizeLabel(op)).Inc()
}
