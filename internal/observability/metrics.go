package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	deviceOps      *prometheus.CounterVec
	deviceDuration *prometheus.HistogramVec
	batchSize      *prometheus.HistogramVec
	pollErrors     prometheus.Counter
	journalRecords *prometheus.CounterVec

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deviceOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openbeam_device_operations_total",
			Help: "Device channel operations by backend, operation and status.",
		}, []string{"backend", "op", "status"}),
		deviceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openbeam_device_operation_duration_seconds",
			Help:    "Histogram of device channel operation durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openbeam_device_batch_size",
			Help:    "Number of channels read or written by one batched list operation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"op"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openbeam_poll_errors_total",
			Help: "Readback poll cycles that failed.",
		}),
		journalRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openbeam_journal_records_total",
			Help: "Setpoint journal records by delivery status.",
		}, []string{"status"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openbeam_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openbeam_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.deviceOps,
		m.deviceDuration,
		m.batchSize,
		m.pollErrors,
		m.journalRecords,
		m.httpRequestsTotal,
		m.httpDuration,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DeviceOp records one channel operation started at start.
func (m *Metrics) DeviceOp(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.deviceOps.WithLabelValues(backend, op, status).Inc()
	m.deviceDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) BatchSize(op string, n int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(op).Observe(float64(n))
}

func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func (m *Metrics) JournalRecord(err error) {
	if m == nil {
		return
	}
	status := "published"
	if err != nil {
		status = "failed"
	}
	m.journalRecords.WithLabelValues(status).Inc()
}

// GinMiddleware counts requests by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
