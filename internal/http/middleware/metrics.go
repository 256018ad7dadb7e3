package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
    RLRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "rate_limiter_requests_total",
            Help: "Total requests seen by the rate limiter",
        },
        []string{"endpoint"},
    )
    RLBlocked = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "rate_limiter_blocked_total",
            Help: "Total requests blocked by the rate limiter",
        },
        []string{"endpoint"},
    )
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "http_requests_total",
            Help: "HTTP requests by method, route and status",
        },
        []string{"method", "route", "status"},
    )
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "http_request_duration_seconds",
            Help:    "HTTP request latency",
            Buckets: prometheus.DefBuckets,
        },
        []string{"method", "route"},
    )
)

func init() {
    prometheus.MustRegister(RLRequests)
    prometheus.MustRegister(RLBlocked)
    prometheus.MustRegister(HTTPRequests)
    prometheus.MustRegister(HTTPDuration)
}
