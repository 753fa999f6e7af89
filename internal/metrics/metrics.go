package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsis_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gsis_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "path"},
	)

	// AlertsCreated counts alerts created through the facade.
	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsis_alerts_created_total",
		Help: "Total number of alerts created",
	})

	// RefreshCycles counts started data-refresh cycles.
	RefreshCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gsis_refresh_cycles_total",
		Help: "Total number of data refresh cycles started",
	})

	// ConnectedClients tracks open realtime connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gsis_realtime_clients",
		Help: "Number of connected realtime clients",
	})
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		httpRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(
			c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
