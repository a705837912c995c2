package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the supervisor process.
type Metrics struct {
	// Bridge (HTTP verb dispatch) metrics
	BridgeRequestsTotal   *prometheus.CounterVec
	BridgeRequestDuration *prometheus.HistogramVec

	// Reducer/engine metrics
	IntentsTotal    *prometheus.CounterVec
	Revision        prometheus.Gauge
	ResyncsTotal    prometheus.Counter

	// Lifecycle scheduler metrics
	WarmTabs    *prometheus.GaugeVec
	ActiveTabs  *prometheus.GaugeVec
	EvictionsTotal *prometheus.CounterVec

	// Engine resource manager (C5) metrics
	EngineCallsTotal    *prometheus.CounterVec
	EngineCallDuration  *prometheus.HistogramVec
	EngineErrorsTotal   *prometheus.CounterVec
	BreakerOpenTotal    prometheus.Counter

	// Event stream metrics
	StreamConnections prometheus.Gauge
	StreamMessages    *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot holds a subset of current metric values for diagnostic JSON
// responses, without requiring callers to scrape the Prometheus endpoint.
type Snapshot struct {
	TotalRequests int64
	TotalErrors   int64
	Revision      uint64
}

// New creates a new metrics collector and registers it with the default
// Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		BridgeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_bridge_requests_total",
				Help: "Total number of bridge verb requests processed",
			},
			[]string{"verb", "status"},
		),
		BridgeRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supervisor_bridge_request_duration_seconds",
				Help:    "Bridge verb request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"verb"},
		),

		IntentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_intents_total",
				Help: "Total number of intents dispatched to the reducer",
			},
			[]string{"kind", "outcome"},
		),
		Revision: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "supervisor_revision",
				Help: "Current state revision number",
			},
		),
		ResyncsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "supervisor_resyncs_total",
				Help: "Total number of full-snapshot resyncs served to chrome clients",
			},
		),

		WarmTabs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "supervisor_warm_tabs",
				Help: "Number of tabs currently in the Warm lifecycle state, per profile",
			},
			[]string{"profile"},
		),
		ActiveTabs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "supervisor_active_tabs",
				Help: "Number of tabs currently in the Active lifecycle state, per profile",
			},
			[]string{"profile"},
		),
		EvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_warm_evictions_total",
				Help: "Total number of tabs evicted from the warm pool",
			},
			[]string{"profile", "reason"},
		),

		EngineCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_engine_calls_total",
				Help: "Total number of calls made to the browser engine",
			},
			[]string{"op", "status"},
		),
		EngineCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "supervisor_engine_call_duration_seconds",
				Help:    "Browser engine call duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		EngineErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_engine_errors_total",
				Help: "Total number of browser engine call failures",
			},
			[]string{"op"},
		),
		BreakerOpenTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "supervisor_engine_breaker_open_total",
				Help: "Total number of times the engine circuit breaker tripped open",
			},
		),

		StreamConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "supervisor_stream_connections",
				Help: "Number of active bridge event stream connections",
			},
		),
		StreamMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_stream_messages_total",
				Help: "Total number of messages sent over the bridge event stream",
			},
			[]string{"type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "supervisor_uptime_seconds",
				Help: "Supervisor process uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordBridgeRequest records one dispatched verb request.
func (m *Metrics) RecordBridgeRequest(verb, status string, duration time.Duration) {
	m.BridgeRequestsTotal.WithLabelValues(verb, status).Inc()
	m.BridgeRequestDuration.WithLabelValues(verb).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "ok" {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordIntent records a reducer dispatch outcome: "accepted", "rejected",
// or "no_op".
func (m *Metrics) RecordIntent(kind, outcome string) {
	m.IntentsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetRevision reflects the engine's current revision counter.
func (m *Metrics) SetRevision(rev uint64) {
	m.Revision.Set(float64(rev))
	m.mu.Lock()
	m.snapshot.Revision = rev
	m.mu.Unlock()
}

// IncResyncs records a full-snapshot resync served in place of a patch chain.
func (m *Metrics) IncResyncs() {
	m.ResyncsTotal.Inc()
}

// SetWarmTabs reflects the lifecycle scheduler's warm pool size for a profile.
func (m *Metrics) SetWarmTabs(profile string, count int) {
	m.WarmTabs.WithLabelValues(profile).Set(float64(count))
}

// SetActiveTabs reflects the number of Active tabs for a profile (normally 0 or 1).
func (m *Metrics) SetActiveTabs(profile string, count int) {
	m.ActiveTabs.WithLabelValues(profile).Set(float64(count))
}

// RecordEviction records a warm-pool eviction.
func (m *Metrics) RecordEviction(profile, reason string) {
	m.EvictionsTotal.WithLabelValues(profile, reason).Inc()
}

// RecordEngineCall records one engine resource manager call.
func (m *Metrics) RecordEngineCall(op, status string, duration time.Duration) {
	m.EngineCallsTotal.WithLabelValues(op, status).Inc()
	m.EngineCallDuration.WithLabelValues(op).Observe(duration.Seconds())
	if status != "ok" {
		m.EngineErrorsTotal.WithLabelValues(op).Inc()
	}
}

// IncBreakerOpen records the engine circuit breaker tripping open.
func (m *Metrics) IncBreakerOpen() {
	m.BreakerOpenTotal.Inc()
}

// IncStreamConnections tracks an opened event stream connection.
func (m *Metrics) IncStreamConnections() {
	m.StreamConnections.Inc()
}

// DecStreamConnections tracks a closed event stream connection.
func (m *Metrics) DecStreamConnections() {
	m.StreamConnections.Dec()
}

// RecordStreamMessage records a message pushed over the event stream.
func (m *Metrics) RecordStreamMessage(msgType string) {
	m.StreamMessages.WithLabelValues(msgType).Inc()
}

// Snapshot returns a copy of the lightweight diagnostic counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
