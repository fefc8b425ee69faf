// Package metrics exposes Prometheus collectors for the catalog pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaanalyzer_refresh_total",
		Help: "Catalog rebuilds by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediaanalyzer_refresh_duration_seconds",
		Help:    "Time spent rebuilding the catalog snapshot",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	itemsFetched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaanalyzer_catalog_items_fetched",
		Help: "Raw catalog items fetched in the last rebuild",
	})

	recordsProduced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaanalyzer_records",
		Help: "Normalized records in the last rebuild",
	})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaanalyzer_upstream_requests_total",
		Help: "Requests to the media server by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // outcome=success|error

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaanalyzer_cache_lookups_total",
		Help: "Cache lookups by backend and result",
	}, []string{"backend", "result"}) // result=hit|miss|corrupt|error

	cacheWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaanalyzer_cache_write_failures_total",
		Help: "Failed snapshot writes by backend",
	}, []string{"backend"})
)

// RecordRefresh records the outcome and duration of one rebuild.
func RecordRefresh(success bool, seconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	refreshTotal.WithLabelValues(outcome).Inc()
	refreshDuration.Observe(seconds)
}

// RecordItemsFetched sets the raw item count of the last rebuild.
func RecordItemsFetched(n int) { itemsFetched.Set(float64(n)) }

// RecordRecordsProduced sets the normalized record count of the last rebuild.
func RecordRecordsProduced(n int) { recordsProduced.Set(float64(n)) }

// IncUpstreamRequest counts one media server request; a non-nil err counts as an error.
func IncUpstreamRequest(endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// IncCacheLookup counts one snapshot read; result is hit, miss, corrupt or error.
func IncCacheLookup(backend, result string) { cacheLookups.WithLabelValues(backend, result).Inc() }

// IncCacheWriteFailure counts one failed snapshot write.
func IncCacheWriteFailure(backend string) { cacheWriteFailures.WithLabelValues(backend).Inc() }
