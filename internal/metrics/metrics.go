package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/answer"
)

var (
	// Annotation metrics
	AnswersParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_answers_parsed_total",
			Help: "Total number of answers run through the citation parser",
		},
		[]string{"status"},
	)

	CitationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_citation_tokens_total",
			Help: "Bracketed citation candidates seen in answer text",
		},
		[]string{"result"}, // resolved|unresolved
	)

	CitationsEmitted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotator_citations_emitted",
			Help:    "Distinct citations kept per parsed answer",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotator_parse_duration_seconds",
			Help:    "Time spent rewriting one answer",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "annotator_cache_hits_total",
			Help: "Total number of parsed-answer cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "annotator_cache_misses_total",
			Help: "Total number of parsed-answer cache misses",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_cache_errors_total",
			Help: "Redis failures while reading or writing the cache",
		},
		[]string{"op"},
	)

	// Store metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_store_writes_total",
			Help: "Annotated answers written to the history store",
		},
		[]string{"status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "annotator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "annotator_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// RecordParse records the outcome of one parse.
func RecordParse(report answer.Report, err error, elapsed time.Duration) {
	if err != nil {
		AnswersParsed.WithLabelValues("invalid").Inc()
		return
	}
	AnswersParsed.WithLabelValues("ok").Inc()
	CitationTokens.WithLabelValues("resolved").Add(float64(report.Resolved))
	CitationTokens.WithLabelValues("unresolved").Add(float64(report.Unresolved))
	CitationsEmitted.Observe(float64(report.Distinct))
	ParseDuration.Observe(elapsed.Seconds())
}
