package handlers

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics bundles the collectors of the HTTP and websocket surface
type HTTPMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	connections prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_http_requests_total",
				Help: "Total count of HTTP requests received.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collab_http_request_duration_seconds",
				Help:    "Histogram of request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_websocket_connections",
			Help: "Open websocket connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.inFlight, m.connections)
	}
	return m
}

func (m *HTTPMetrics) connectionOpened() { m.connections.Inc() }
func (m *HTTPMetrics) connectionClosed() { m.connections.Dec() }

// Instrument records count and latency per route. Websocket upgrades are
// counted when the handler returns, which is right after the upgrade.
func (m *HTTPMetrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()

		route := c.FullPath()
		if route == "" {
			route = sanitizePath(c.Request.URL.Path)
		}
		labels := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status())}

		m.requests.WithLabelValues(labels...).Inc()
		m.duration.WithLabelValues(labels...).Observe(elapsed)
	}
}

// sanitizePath reduces cardinality of unmatched paths by keeping at most
// three segments.
func sanitizePath(p string) string {
	clean := path.Clean(p)
	if clean == "" || clean == "." {
		return "/"
	}

	segments := strings.Split(clean, "/")
	if len(segments) > 4 {
		segments = append(segments[:4], "...")
	}

	res := strings.Join(segments, "/")
	if !strings.HasPrefix(res, "/") {
		res = "/" + res
	}
	return res
}

// MetricsHandler exposes gatherer in the Prometheus text format
func MetricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
