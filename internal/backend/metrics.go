package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts users API calls by operation and outcome.
	// outcome is the HTTP status code, or "error" when no response arrived.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usercrud_backend_requests_total",
			Help: "Total number of requests sent to the users API.",
		},
		[]string{"op", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usercrud_backend_request_duration_seconds",
			Help:    "Duration of users API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func observeRequest(op, outcome string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(op, outcome).Inc()
	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
