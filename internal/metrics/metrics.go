// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "submissions_total",
		Help:      "Attendance submissions by outcome (accepted, already_attended or a rejection reason).",
	}, []string{"outcome"})

	LedgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "ledger_calls_total",
		Help:      "Calls made to the attendance ledger backend.",
	}, []string{"op"})

	LedgerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "ledger_retries_total",
		Help:      "Ledger calls retried after a transient failure.",
	}, []string{"op"})

	LedgerCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "ledger_cache_hits_total",
		Help:      "Sheet reads served from the in-process cache.",
	})

	PermissiveFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "device_permissive_fallbacks_total",
		Help:      "Device checks that passed only because the ambiguous-device policy is allow.",
	})
)

var HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rollcall",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by method, route and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

var GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rollcall",
	Name:      "grpc_requests_total",
	Help:      "gRPC calls by method and status code.",
}, []string{"method", "code"})
