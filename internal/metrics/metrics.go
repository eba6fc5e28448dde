// Package metrics exposes the Prometheus instruments for the ingest
// pipeline. The HTTP server serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investing_agent_ingest_jobs_total",
			Help: "Ingest jobs finished, labeled by terminal status",
		},
		[]string{"status"},
	)

	IngestJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "investing_agent_ingest_job_duration_seconds",
			Help:    "Wall-clock duration of one ingest job",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ThemesResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investing_agent_themes_resolved_total",
			Help: "Theme resolutions, labeled by cascade stage",
		},
		[]string{"stage"},
	)

	MergesExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "investing_agent_theme_merges_total",
			Help: "Theme merges executed",
		},
	)
)
