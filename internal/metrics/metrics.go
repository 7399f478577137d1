// Package metrics declares the Prometheus collectors shared by the fetch
// pipeline and the web front end.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Storefront client
	DetailRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_detail_requests_total",
			Help: "Detail fetch attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "not_found", "transport", "rate_limited", "bad_status", "decode"
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_fetch_retries_total",
			Help: "Backoff sleeps taken before re-attempting a detail fetch",
		},
		[]string{"reason"}, // "transport", "rate_limited"
	)

	ReviewRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_review_requests_total",
			Help: "Review fetches by outcome",
		},
		[]string{"outcome"},
	)

	// Pipeline
	UnitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_units_processed_total",
			Help: "Catalog ids completed by the fetch pipeline",
		},
		[]string{"result"}, // "stored", "no_result", "failed"
	)

	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_batch_flushes_total",
			Help: "Batch writes to the store",
		},
		[]string{"result"}, // "ok", "error"
	)

	GamesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_games_saved_total",
			Help: "Games included in committed batches",
		},
	)

	ReviewsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerec_reviews_saved_total",
			Help: "Reviews included in committed batches",
		},
	)

	// Serving
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerec_recommend_requests_total",
			Help: "Recommendation requests by status",
		},
		[]string{"status"}, // "ok", "empty_query", "error"
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamerec_recommend_duration_seconds",
			Help:    "Time to embed a query and rank the catalog",
			Buckets: prometheus.DefBuckets,
		},
	)
)
