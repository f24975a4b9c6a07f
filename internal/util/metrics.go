package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_completed_total",
		Help: "Total number of successfully completed purchases",
	})

	PurchasesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_rejected_total",
		Help: "Total number of rejected purchase attempts",
	}, []string{"reason"})

	SignatureVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_verifications_total",
		Help: "Total number of payment signature verifications",
	}, []string{"result"})

	DriveGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_grants_total",
		Help: "Total number of Drive permission grants",
	}, []string{"target", "result"})

	DriveRevokesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_revokes_total",
		Help: "Total number of Drive permission revocations",
	}, []string{"result"})

	DriveGrantLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drive_grant_latency_seconds",
		Help:    "Latency of folder access grants including shortcut fan-out",
		Buckets: prometheus.DefBuckets,
	})

	AccessGrantFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "access_grant_failures_total",
		Help: "Total number of folder grants that failed after a committed purchase",
	})

	AccessGrantRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_grant_retries_total",
		Help: "Total number of queued folder grant retries",
	}, []string{"outcome"})

	CatalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Total number of catalog reads served from cache",
	})

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
