package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outcalling"

// Metrics 通话与 HTTP 指标
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	activeBridges prometheus.Gauge
	streams       *prometheus.CounterVec
	adapters      *prometheus.CounterVec
	bookings      *prometheus.CounterVec
	callsPlaced   *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到独立的 registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		activeBridges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bridges",
			Help:      "Media stream connections currently bridged.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_streams_total",
			Help:      "Media stream lifecycle events.",
		}, []string{"event"}),
		adapters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "convai_handshakes_total",
			Help:      "Speech session handshakes by result.",
		}, []string{"result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		}, []string{"result"}),
		callsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Outbound call placements by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.activeBridges,
		m.streams,
		m.adapters,
		m.bookings,
		m.callsPlaced,
	)
	return m
}

// Registry 指标 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler Prometheus 抓取接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// BridgeOpened 媒体流连接建立
func (m *Metrics) BridgeOpened() { m.activeBridges.Inc() }

// BridgeClosed 媒体流连接结束
func (m *Metrics) BridgeClosed() { m.activeBridges.Dec() }

// RecordStream 记录流事件（started / stopped）
func (m *Metrics) RecordStream(event string) { m.streams.WithLabelValues(event).Inc() }

// RecordHandshake 记录握手结果（success / failure）
func (m *Metrics) RecordHandshake(result string) { m.adapters.WithLabelValues(result).Inc() }

// RecordBooking 记录预约结果（success / failure）
func (m *Metrics) RecordBooking(result string) { m.bookings.WithLabelValues(result).Inc() }

// RecordCallPlaced 记录外呼结果（success / failure）
func (m *Metrics) RecordCallPlaced(result string) { m.callsPlaced.WithLabelValues(result).Inc() }

// GinMiddleware 记录 HTTP 指标，使用路由模板作为 path 标签
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
