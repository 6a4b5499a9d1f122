package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	directoriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildidx",
			Subsystem: "crawl",
			Name:      "directories_total",
			Help:      "Total number of package directories handled, by outcome.",
		},
		[]string{"outcome"},
	)
	debsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildidx",
			Subsystem: "crawl",
			Name:      "debs_total",
			Help:      "Total number of packages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	recordsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildidx",
			Subsystem: "crawl",
			Name:      "records_total",
			Help:      "Total number of build IDs added to the index.",
		},
	)
	debDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "buildidx",
			Subsystem: "crawl",
			Name:      "deb_duration_seconds",
			Help:      "Time spent downloading, unpacking and inspecting one package.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
