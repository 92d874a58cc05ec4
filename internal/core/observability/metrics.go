package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	searchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Search calls by outcome (ok, empty_query, partial, unavailable, invalid).",
		},
		[]string{"outcome"},
	)

	retrievalDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_retrieval_duration_seconds",
			Help:    "Latency of one entity-kind retrieval.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"kind", "result"},
	)

	degradedGroupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_degraded_groups_total",
			Help: "Entity-kind groups returned empty because their retrieval failed or timed out.",
		},
		[]string{"kind"},
	)

	facetComputeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facet_compute_seconds",
			Help:    "Time spent computing one facet snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	facetCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facet_cache_results_total",
			Help: "Facet snapshot cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	decodeAnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_decode_anomalies_total",
			Help: "Filter values dropped while decoding a request.",
		},
		[]string{"param"},
	)

	storeOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Latency of storage operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"store", "op", "result"},
	)

	popularCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "popular_places_cache_total",
			Help: "Popular places read-through cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	indexDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "search_index_documents",
			Help: "Documents in the live text index per entity kind.",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

// Init registers the collectors once. A nil registerer means the default registry.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			httpRequestsTotal,
			httpRequestDurationSeconds,
			searchRequestsTotal,
			retrievalDurationSeconds,
			degradedGroupsTotal,
			facetComputeSeconds,
			facetCacheResults,
			decodeAnomaliesTotal,
			storeOpDurationSeconds,
			popularCacheResults,
			indexDocuments,
		)
	})
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncSearch(outcome string) {
	searchRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveRetrieval(kind string, err error, durationSeconds float64) {
	retrievalDurationSeconds.WithLabelValues(kind, result(err)).Observe(durationSeconds)
}

func IncDegradedGroup(kind string) {
	degradedGroupsTotal.WithLabelValues(kind).Inc()
}

func ObserveFacetCompute(durationSeconds float64) {
	facetComputeSeconds.Observe(durationSeconds)
}

func IncFacetCache(hit bool) {
	if hit {
		facetCacheResults.WithLabelValues("hit").Inc()
		return
	}
	facetCacheResults.WithLabelValues("miss").Inc()
}

func AddDecodeAnomaly(param string) {
	decodeAnomaliesTotal.WithLabelValues(param).Inc()
}

func ObserveStoreOp(store, op string, err error, durationSeconds float64) {
	storeOpDurationSeconds.WithLabelValues(store, op, result(err)).Observe(durationSeconds)
}

func IncPopularCache(hit bool) {
	if hit {
		popularCacheResults.WithLabelValues("hit").Inc()
		return
	}
	popularCacheResults.WithLabelValues("miss").Inc()
}

func SetIndexDocuments(kind string, n int) {
	indexDocuments.WithLabelValues(kind).Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
