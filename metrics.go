package main

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rental_requests",
		Help: "The total number of rental requests created",
	})
	offerCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rental_offers",
		Help: "The total number of offers submitted",
	})
	decisionCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decisions",
		Help: "The total number of decided requests",
	})
	withdrawalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawals",
		Help: "The total number of escrow withdrawals paid out",
	})
	interledgerCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interledger_events",
		Help: "Inbound interledger events by outcome",
	}, []string{"outcome"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_response_duration_seconds",
		Help: "Latency of requests in second.",
	}, []string{"path"})
)

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(r.URL.Path))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		timer.ObserveDuration()
	})
}
