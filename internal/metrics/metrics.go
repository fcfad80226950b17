// Package metrics exposes ingest and query counters for promhttp.Handler,
// the same way vjache-cie's cmd/cie/index.go wires /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "ingest",
		Name:      "files_fetched_total",
		Help:      "Files successfully fetched and placed into the mirror, by archive.",
	}, []string{"archive"})

	FilesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "ingest",
		Name:      "files_failed_total",
		Help:      "Files that failed ingestion, by archive and error kind.",
	}, []string{"archive", "kind"})

	BytesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "ingest",
		Name:      "bytes_fetched_total",
		Help:      "Bytes fetched from upstream, by archive.",
	}, []string{"archive"})

	TuplesProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "ingest",
		Name:      "tuples_provisioned_total",
		Help:      "Completed (archive, timestamp, suite) ingestions, each covering every selected component and arch.",
	}, []string{"archive"})

	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapshot",
		Subsystem: "ingest",
		Name:      "tuple_duration_seconds",
		Help:      "Wall time to ingest one tuple.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"archive"})

	QueryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapshot",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests served by the query API, by route and status class.",
	}, []string{"route", "status"})
)
