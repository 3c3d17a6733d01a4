package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Window metrics
	WindowsOpen prometheus.Gauge
	Bindings    prometheus.Gauge

	// Session metrics
	ClientsTotal  prometheus.Counter
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Dispatch metrics
	Events           *prometheus.CounterVec
	CallbackDuration *prometheus.HistogramVec
	Unresolved       prometheus.Counter

	// Script bridge metrics
	ScriptOutcomes *prometheus.CounterVec
	ScriptDuration prometheus.Histogram
	RawBytes       prometheus.Counter

	startTime time.Time

	// Snapshot for the health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current values for JSON reporting
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	ClientsSeen       int64   `json:"clients_seen"`
	EventsDispatched  int64   `json:"events_dispatched"`
	ScriptsTimedOut   int64   `json:"scripts_timed_out"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webbridge_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		WindowsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webbridge_windows_open",
				Help: "Number of windows not yet destroyed",
			},
		),
		Bindings: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webbridge_bindings",
				Help: "Number of registered bindings",
			},
		),

		ClientsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webbridge_clients_total",
				Help: "Distinct clients seen since start",
			},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webbridge_ws_connections",
				Help: "Number of live WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbridge_events_total",
				Help: "Events dispatched to callbacks",
			},
			[]string{"type"},
		),
		CallbackDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webbridge_callback_duration_seconds",
				Help:    "Time spent in native callbacks",
				Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"type"},
		),
		Unresolved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webbridge_unresolved_events_total",
				Help: "Events dropped because no binding matched",
			},
		),

		ScriptOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbridge_script_evals_total",
				Help: "Script evaluations by outcome",
			},
			[]string{"outcome"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webbridge_script_eval_duration_seconds",
				Help:    "Script evaluation round trip in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30},
			},
		),
		RawBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webbridge_raw_bytes_total",
				Help: "Bytes pushed over the raw binary channel",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "webbridge_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetConnections sets the live connection count
func (m *Metrics) SetConnections(count int) {
	m.WSConnections.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveConnections = int64(count)
	m.mu.Unlock()
}

// IncClients counts a newly seen client
func (m *Metrics) IncClients() {
	m.ClientsTotal.Inc()
	m.mu.Lock()
	m.snapshot.ClientsSeen++
	m.mu.Unlock()
}

// RecordEvent records one callback invocation
func (m *Metrics) RecordEvent(eventType string, duration time.Duration) {
	m.Events.WithLabelValues(eventType).Inc()
	m.CallbackDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.EventsDispatched++
	m.mu.Unlock()
}

// IncUnresolved counts an event no binding matched
func (m *Metrics) IncUnresolved() {
	m.Unresolved.Inc()
}

// RecordScript records the outcome of an eval
func (m *Metrics) RecordScript(outcome string, duration time.Duration) {
	m.ScriptOutcomes.WithLabelValues(outcome).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
	if outcome == "timeout" {
		m.mu.Lock()
		m.snapshot.ScriptsTimedOut++
		m.mu.Unlock()
	}
}

// AddRawBytes counts bytes sent on the raw channel
func (m *Metrics) AddRawBytes(n int) {
	m.RawBytes.Add(float64(n))
}

// SetWindows sets the open window count
func (m *Metrics) SetWindows(count int) {
	m.WindowsOpen.Set(float64(count))
}

// SetBindings sets the registered binding count
func (m *Metrics) SetBindings(count int) {
	m.Bindings.Set(float64(count))
}

// Snapshot returns the current JSON-friendly values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
