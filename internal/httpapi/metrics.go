package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsSet holds the Prometheus collectors exported at /metrics.
type metricsSet struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newMetricsSet() *metricsSet {
	return &metricsSet{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pluginhost_http_requests_total",
			Help: "Total number of host API requests, by path.",
		}, []string{"path"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pluginhost_http_request_duration_seconds",
			Help:    "Host API request latency, by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

func (m *metricsSet) observeRequest(path string, d time.Duration) {
	m.requestsTotal.WithLabelValues(path).Inc()
	m.requestDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.Handler()
}
