// Package metrics exposes Prometheus collectors for the price monitor.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	extractionFailuresTotal    *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	passDurationSeconds        prometheus.Histogram
	passesTotal                *prometheus.CounterVec
	rulesTracked               prometheus.Gauge
	fetchesInFlight            prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors with the default registry.
// It is safe to call this function multiple times; every Observe helper
// calls it as well.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_fetches_total",
				Help: "Total number of product page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_fetch_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_fetch_duration_seconds",
				Help:    "Histogram of product page fetch latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		extractionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_extraction_failures_total",
				Help: "Total number of failed extractions, labeled by shop and reason.",
			},
			[]string{"shop", "reason"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_notifications_total",
				Help: "Total number of notification deliveries, labeled by status.",
			},
			[]string{"status"},
		)

		passDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_pass_duration_seconds",
				Help:    "Histogram of monitoring pass durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		)

		passesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_passes_total",
				Help: "Total number of monitoring passes, labeled by status.",
			},
			[]string{"status"},
		)

		rulesTracked = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_rules",
				Help: "Number of alert rules loaded by the last pass.",
			},
		)

		fetchesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_fetches_in_flight",
				Help: "Number of rules currently being fetched and evaluated.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_rate_limit_delay_seconds",
				Help:    "Histogram of pacing waits between fetch starts.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if trimmed := strings.TrimPrefix(host, "www."); trimmed != "" {
		host = trimmed
	}
	return host
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(rawURL, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveExtractionFailure counts a failed extraction. Reason is either
// "site_drift" or "no_extractor".
func ObserveExtractionFailure(shop, reason string) {
	Init()
	if shop == "" {
		shop = "unknown"
	}
	extractionFailuresTotal.WithLabelValues(shop, reason).Inc()
}

// ObserveNotification counts a notification delivery attempt.
func ObserveNotification(status string) {
	Init()
	notificationsTotal.WithLabelValues(status).Inc()
}

// ObservePass records a finished (or aborted) monitoring pass.
func ObservePass(status string, duration time.Duration) {
	Init()
	passesTotal.WithLabelValues(status).Inc()
	passDurationSeconds.Observe(duration.Seconds())
}

// SetRules sets the number of rules loaded by the current pass.
func SetRules(n int) {
	Init()
	rulesTracked.Set(float64(n))
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	Init()
	fetchesInFlight.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	Init()
	fetchesInFlight.Dec()
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
