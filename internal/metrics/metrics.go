// Package metrics holds the prometheus collectors shared by the request
// pipeline. Collectors are registered with the default registry on import.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestDurationMetrics = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tukar_request_duration_milliseconds",
			Help:    "Venue HTTP request duration in milliseconds, including signing and transport",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~5s
		}, []string{"exchange", "api"},
	)

	requestTotalMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tukar_request_total",
			Help: "Total number of venue requests by response status code",
		}, []string{"exchange", "api", "status_code"},
	)

	requestErrorMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tukar_request_errors_total",
			Help: "Total number of failed venue requests by error type",
		}, []string{"exchange", "type"},
	)

	throttleWaitMetrics = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tukar_throttle_wait_milliseconds",
			Help:    "Time requests spent waiting for a throttle slot",
			Buckets: prometheus.LinearBuckets(0, 250, 11), // 0 to 2.5s
		}, []string{"exchange"},
	)

	usedWeightMetrics = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tukar_used_weight",
			Help: "Last request weight usage reported by the venue",
		}, []string{"exchange"},
	)

	marketsFetchMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tukar_markets_fetch_total",
			Help: "Number of market list downloads",
		}, []string{"exchange"},
	)
)

func init() {
	prometheus.MustRegister(
		requestDurationMetrics,
		requestTotalMetrics,
		requestErrorMetrics,
		throttleWaitMetrics,
		usedWeightMetrics,
		marketsFetchMetrics,
	)
}

// ObserveRequest records one completed HTTP exchange. statusCode is 0 when
// no response arrived.
func ObserveRequest(exchange, api string, statusCode int, d time.Duration) {
	requestDurationMetrics.WithLabelValues(exchange, api).Observe(float64(d.Milliseconds()))
	requestTotalMetrics.WithLabelValues(exchange, api, strconv.Itoa(statusCode)).Inc()
}

// ObserveError counts a failed request by its error type name.
func ObserveError(exchange, errorType string) {
	requestErrorMetrics.WithLabelValues(exchange, errorType).Inc()
}

// ObserveThrottleWait records time spent in the throttle.
func ObserveThrottleWait(exchange string, d time.Duration) {
	throttleWaitMetrics.WithLabelValues(exchange).Observe(float64(d.Milliseconds()))
}

// SetUsedWeight records the venue reported weight.
func SetUsedWeight(exchange string, weight int64) {
	usedWeightMetrics.WithLabelValues(exchange).Set(float64(weight))
}

// IncMarketsFetch counts a market list download.
func IncMarketsFetch(exchange string) {
	marketsFetchMetrics.WithLabelValues(exchange).Inc()
}

// MarketsFetchCount returns the counter for exchange, for tests.
func MarketsFetchCount(exchange string) prometheus.Counter {
	return marketsFetchMetrics.WithLabelValues(exchange)
}

// RequestErrorCount returns the error counter for exchange and type, for tests.
func RequestErrorCount(exchange, errorType string) prometheus.Counter {
	return requestErrorMetrics.WithLabelValues(exchange, errorType)
}
