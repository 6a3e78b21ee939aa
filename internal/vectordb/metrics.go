package vectordb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for the path dimension.
const (
	pathEngine   = "engine"
	pathFallback = "fallback"
	pathMiss     = "miss"
)

var (
	documentsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taleemd",
		Subsystem: "vectordb",
		Name:      "documents_added_total",
		Help:      "Documents added, labeled by storage path (engine or fallback).",
	}, []string{"path"})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taleemd",
		Subsystem: "vectordb",
		Name:      "searches_total",
		Help:      "Searches served, labeled by storage path (engine, fallback, or miss).",
	}, []string{"path"})

	workerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taleemd",
		Subsystem: "vectordb",
		Name:      "worker_duration_seconds",
		Help:      "Insert worker invocation duration.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func recordAdd(path string, count int) {
	documentsAdded.WithLabelValues(path).Add(float64(count))
}

func recordSearch(path string) {
	searchesTotal.WithLabelValues(path).Inc()
}

func observeWorkerDuration(d time.Duration) {
	workerDuration.Observe(d.Seconds())
}
