// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RemoteFetchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicanchor_remote_fetch_errors_total",
		Help: "Remote collection queries that failed",
	}, []string{"collection"})
	LocalFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "civicanchor_local_fallbacks_total",
		Help: "Nearby queries answered from the local cache",
	})
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicanchor_uploads_total",
		Help: "Anchor uploads by outcome",
	}, []string{"outcome"})
	PendingUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "civicanchor_pending_uploads",
		Help: "Records waiting in the pending-upload queue",
	})
	MalformedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicanchor_malformed_records_total",
		Help: "Records skipped because they could not be parsed",
	}, []string{"source"})
	CacheQuarantinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "civicanchor_cache_quarantines_total",
		Help: "Corrupt local files moved aside",
	})
	RecomputesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civicanchor_impact_recomputes_total",
		Help: "Impact recomputes by triggering source",
	}, []string{"source"})
	RecomputeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "civicanchor_impact_recompute_duration_ms",
		Help:    "Impact recompute duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100},
	})
	TotalReports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "civicanchor_reports",
		Help: "Reports in the latest impact snapshot",
	})
	RedZones = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "civicanchor_red_zones",
		Help: "Red zones in the latest impact snapshot",
	})
)

func init() {
	prometheus.MustRegister(RemoteFetchErrorsTotal)
	prometheus.MustRegister(LocalFallbacksTotal)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(PendingUploads)
	prometheus.MustRegister(MalformedRecordsTotal)
	prometheus.MustRegister(CacheQuarantinesTotal)
	prometheus.MustRegister(RecomputesTotal)
	prometheus.MustRegister(RecomputeDurationMs)
	prometheus.MustRegister(TotalReports)
	prometheus.MustRegister(RedZones)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
