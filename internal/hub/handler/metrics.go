package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ringRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ringhub_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ringRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ringhub_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ringSignatureChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ringhub_signature_verifications_total",
		Help: "Total HTTP signature verifications by result.",
	}, []string{"result"})

	ringRingsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ringhub_rings_total",
		Help: "Total number of rings by visibility.",
	}, []string{"visibility"})

	ringActorsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ringhub_actors_total",
		Help: "Total number of actors that have authenticated.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		ringRequestsTotal.WithLabelValues(method, path, status).Inc()
		ringRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSignatureCheck records an HTTP signature verification result.
func RecordSignatureCheck(success bool) {
	if success {
		ringSignatureChecks.WithLabelValues("success").Inc()
	} else {
		ringSignatureChecks.WithLabelValues("failure").Inc()
	}
}

// SetRingsGauge sets the ring count gauge for a given visibility.
func SetRingsGauge(visibility string, count float64) {
	ringRingsTotal.WithLabelValues(visibility).Set(count)
}

// SetActorsGauge sets the actor count gauge.
func SetActorsGauge(count float64) {
	ringActorsTotal.Set(count)
}
