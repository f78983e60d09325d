package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	cascades  prometheus.Counter
	conflicts prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homebid_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homebid_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		cascades: factory.NewCounter(prometheus.CounterOpts{
			Name: "homebid_bid_accept_cascades_total",
			Help: "Bid acceptances that committed, including their reject fan-out.",
		}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "homebid_bid_accept_conflicts_total",
			Help: "Bid acceptances that lost the race to another accepted bid.",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		m.requests.WithLabelValues(req.Method, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	})
}
