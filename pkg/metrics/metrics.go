package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the dashboard. All methods are
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	backendDuration   *prometheus.HistogramVec
	backendErrors     *prometheus.CounterVec
	storeLoads        *prometheus.CounterVec
	storeCommands     *prometheus.CounterVec
	devices           prometheus.Gauge
	activeAlerts      prometheus.Gauge
}

// New creates the collectors and registers them with a private registry so
// more than one instance can exist in a process.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homedash_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homedash_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homedash_backend_request_duration_seconds",
			Help:    "Histogram of backend API request durations by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homedash_backend_errors_total",
			Help: "Total backend API failures by endpoint and kind (network, parse, validation).",
		}, []string{"endpoint", "kind"}),
		storeLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homedash_store_loads_total",
			Help: "Total dashboard load cycles by result.",
		}, []string{"result"}),
		storeCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homedash_store_commands_total",
			Help: "Total commands sent to the backend by kind and result.",
		}, []string{"kind", "result"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homedash_devices",
			Help: "Number of devices in the last successful load.",
		}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homedash_active_alerts",
			Help: "Number of unresolved alerts in the last successful load.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.backendDuration,
		m.backendErrors,
		m.storeLoads,
		m.storeCommands,
		m.devices,
		m.activeAlerts,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records the count and duration of requests served by next.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BackendRequest records one backend round trip. kind is empty on success.
func (m *Metrics) BackendRequest(endpoint string, duration time.Duration, kind string) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if kind != "" {
		m.backendErrors.WithLabelValues(endpoint, kind).Inc()
	}
}

// Load records the outcome of a load cycle and, on success, the collection sizes.
func (m *Metrics) Load(success bool, devices, activeAlerts int) {
	if m == nil {
		return
	}
	if !success {
		m.storeLoads.WithLabelValues("error").Inc()
		return
	}
	m.storeLoads.WithLabelValues("ok").Inc()
	m.devices.Set(float64(devices))
	m.activeAlerts.Set(float64(activeAlerts))
}

// Command records the outcome of a command sent to the backend.
func (m *Metrics) Command(kind string, success bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !success {
		result = "error"
	}
	m.storeCommands.WithLabelValues(kind, result).Inc()
}
