// Package metrics exposes the prometheus collectors the admin surface scrapes
// at /metrics: rows ingested per phase, chunk consolidation throughput,
// download throughput, and the current release's lifecycle state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cnpj_ingestd",
			Name:      "rows_ingested_total",
			Help:      "Rows durably committed per release and phase.",
		},
		[]string{"release", "phase"},
	)

	ChunkConsolidationRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cnpj_ingestd",
			Name:      "chunk_consolidation_rows_total",
			Help:      "Rows inserted into the super-table by Phase 3 Part 2 chunk consolidation.",
		},
		[]string{"release"},
	)

	ChunkConsolidationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cnpj_ingestd",
			Name:      "chunk_consolidation_seconds",
			Help:      "Wall-clock duration of a single Phase 3 Part 2 chunk consolidation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"release"},
	)

	DownloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cnpj_ingestd",
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded per release.",
		},
		[]string{"release"},
	)

	DownloadSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cnpj_ingestd",
			Name:      "download_seconds",
			Help:      "Wall-clock duration of a single file download.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"release"},
	)

	// CurrentReleaseStatus is 1 for the (release, status) pair currently
	// reported by the version registry and 0 otherwise, so a single gauge
	// vector can answer "what state is the current release in" with a
	// `max by (release)` query that ignores the stale states.
	CurrentReleaseStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cnpj_ingestd",
			Name:      "current_release_status",
			Help:      "1 for the current release's active status, 0 for every other known status.",
		},
		[]string{"release", "status"},
	)
)

// statuses is the fixed label set CurrentReleaseStatus zeroes out before
// setting the active one, so a transition away from a status doesn't leave
// its gauge stuck at 1.
var statuses = []string{"pending", "running", "completed", "failed"}

// SetCurrentRelease sets release's gauge to 1 for status active and 0 for
// every other status. Gauges of other releases are left unchanged.
func SetCurrentRelease(release, active string) {
	for _, status := range statuses {
		value := 0.0
		if status == active {
			value = 1.0
		}
		CurrentReleaseStatus.WithLabelValues(release, status).Set(value)
	}
}

func init() {
	prometheus.MustRegister(
		RowsIngested,
		ChunkConsolidationRows,
		ChunkConsolidationSeconds,
		DownloadBytes,
		DownloadSeconds,
		CurrentReleaseStatus,
	)
}
