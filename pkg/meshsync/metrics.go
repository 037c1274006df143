package meshsync

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var logNum = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "logs",
		Help: "Number of logs",
	},
	[]string{"level"},
)

var syncCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sync_cycles",
		Help: "Sync passes run",
	},
	[]string{"scope"},
)

var entitiesExtracted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entities_extracted",
		Help: "Entities exported into a scene",
	},
	[]string{"kind"},
)

var entitiesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entities_skipped",
		Help: "Entities skipped because of identity or extraction failures",
	},
	[]string{"kind"},
)

var cacheAllocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_allocations",
		Help: "Transport entities allocated instead of reused from a cache slot",
	},
	[]string{"kind"},
)

var sendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sends",
		Help: "Completed background sends",
	},
	[]string{"result"},
)

var sendDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "send_duration_seconds",
		Help:    "How long a background send takes",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	},
)

var metricsOnce sync.Once

// InitMetrics registers the collectors with the default registry. It is safe
// to call more than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(logNum)
		prometheus.MustRegister(syncCycles)
		prometheus.MustRegister(entitiesExtracted)
		prometheus.MustRegister(entitiesSkipped)
		prometheus.MustRegister(cacheAllocations)
		prometheus.MustRegister(sendsTotal)
		prometheus.MustRegister(sendDuration)
	})
}
