package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_accepted_total",
		Help: "Total number of purchase intents accepted and enqueued",
	})

	PurchasesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_rejected_total",
		Help: "Total number of purchase requests rejected at accept time",
	}, []string{"reason"})

	IntentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intents_processed_total",
		Help: "Total number of purchase intents processed by outcome",
	}, []string{"outcome"})

	IntentProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intent_process_latency_seconds",
		Help:    "Latency of applying a purchase intent to the stock store",
		Buckets: prometheus.DefBuckets,
	})

	WorkerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_retries_total",
		Help: "Total number of retried message deliveries after transient failures",
	})

	CacheWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_write_failures_total",
		Help: "Total number of failed stock cache writes after a committed mutation",
	})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_lookups_total",
		Help: "Total number of stock cache lookups by result",
	}, []string{"result"})

	BusPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_event_publish_failures_total",
		Help: "Total number of stock change events that could not be published",
	})

	StockEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_events_published_total",
		Help: "Total number of stock change events published by cause",
	}, []string{"cause"})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_subscribers",
		Help: "Number of live streaming connections attached to this replica",
	})

	StreamEventsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_events_delivered_total",
		Help: "Total number of stock events handed to local streaming connections",
	})

	StreamDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_drops_total",
		Help: "Total number of streaming connections torn down by reason",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
