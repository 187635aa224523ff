// Package metrics provides Prometheus metrics for the opinions scanner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opinions_scanner"

var (
	// RunsTotal counts pipeline runs by kind (scan, flush) and result (ok, empty, error).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"kind", "result"},
	)

	// RunDuration measures end-to-end run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// RecordsDiscovered counts case records extracted from the table.
	RecordsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_discovered_total",
			Help:      "Total number of case records discovered",
		},
	)

	// PagesScraped counts rendered table pages read.
	PagesScraped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_scraped_total",
			Help:      "Total number of table pages scraped",
		},
	)

	// DeliveriesTotal counts sink deliveries by status (delivered, failed, skipped, dropped).
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of document URL deliveries",
		},
		[]string{"status"},
	)

	// LedgerSize tracks outstanding URLs after the last persist.
	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_outstanding",
			Help:      "Number of document URLs awaiting acknowledgement",
		},
	)

	// TagsCreated counts tags pushed to the tag sink by result.
	TagsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_total",
			Help:      "Total number of tags pushed downstream",
		},
		[]string{"result"},
	)
)
