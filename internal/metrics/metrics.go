// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IndexRuns counts indexing operations by operation (build, delta) and result.
	IndexRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_index_runs_total",
		Help: "Indexing operations by operation and result",
	}, []string{"operation", "result"})

	// IndexDuration tracks indexing latency.
	IndexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ansuz_index_duration_seconds",
		Help:    "Indexing duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"operation"})

	// IndexFiles counts files by outcome (indexed, skipped, parse_error).
	IndexFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_index_files_total",
		Help: "Files seen by the indexer by outcome",
	}, []string{"outcome"})

	// IndexBytes counts bytes read from indexed files.
	IndexBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ansuz_index_bytes_total",
		Help: "Bytes of source indexed",
	})

	// Snapshots tracks the number of snapshots held in memory.
	Snapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ansuz_snapshots",
		Help: "Snapshots currently held by the store",
	})

	// PersistErrors counts failed persistence writes by operation.
	PersistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_persist_errors_total",
		Help: "Failed snapshot persistence writes by operation",
	}, []string{"operation"})

	// ToolCalls counts tool invocations by tool and result.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_tool_calls_total",
		Help: "Tool calls by tool and result",
	}, []string{"tool", "result"})

	// ToolCacheHits counts memoized query results served from cache.
	ToolCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_tool_cache_hits_total",
		Help: "Tool results served from the query cache",
	}, []string{"tool"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
