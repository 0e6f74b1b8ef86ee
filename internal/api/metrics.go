package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edurag",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status.",
	}, []string{"pattern", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edurag",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pattern"})

	tutorTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edurag",
		Subsystem: "tutor",
		Name:      "turns_total",
		Help:      "Tutor turns by outcome.",
	}, []string{"outcome"})

	searchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edurag",
		Subsystem: "retrieval",
		Name:      "searches_total",
		Help:      "Content searches served.",
	})
)
