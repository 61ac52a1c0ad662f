package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SwapsExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgbot_swaps_executed_total",
		Help: "Number of swaps confirmed on-chain",
	})

	SwapsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgbot_swaps_failed_total",
		Help: "Number of swaps that ended in failure",
	})

	SwapsReplaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgbot_swaps_replaced_total",
		Help: "Number of swaps confirmed via a replacement transaction",
	})

	QuoteCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgbot_quote_cache_hits_total",
		Help: "Price responses served from the short-lived cache",
	})

	QuoteCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgbot_quote_cache_misses_total",
		Help: "Price requests that went upstream",
	})

	APIErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgbot_zerox_errors_total",
		Help: "Upstream 0x API failures by kind",
	}, []string{"kind"})

	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tgbot_quote_latency_seconds",
		Help:    "Time to obtain a price or quote from the 0x API",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		SwapsExecuted,
		SwapsFailed,
		SwapsReplaced,
		QuoteCacheHits,
		QuoteCacheMisses,
		APIErrors,
		QuoteLatency,
	)
}
