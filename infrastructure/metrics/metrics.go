// Package metrics provides Prometheus metrics collection for the
// automation core and its HTTP surface.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// SAE compiler/VM metrics
	SAECompileTotal      *prometheus.CounterVec
	SAEEvaluateDuration  *prometheus.HistogramVec
	SAEEvaluateErrors    *prometheus.CounterVec

	// Action dispatcher metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ActionErrors     *prometheus.CounterVec

	// Primitive (Pairing/Rule/Timer) metrics
	PrimitivesActive *prometheus.GaugeVec
	RuleFiresTotal   *prometheus.CounterVec
	TimerFiresTotal  *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		SAECompileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sae_compile_total",
				Help: "Total number of SAE program compilations",
			},
			[]string{"result"},
		),
		SAEEvaluateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sae_evaluate_duration_seconds",
				Help:    "SAE program evaluation duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"primitive"},
		),
		SAEEvaluateErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sae_evaluate_errors_total",
				Help: "Total number of SAE evaluation errors",
			},
			[]string{"primitive", "reason"},
		),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_dispatch_total",
				Help: "Total number of action dispatcher invocations",
			},
			[]string{"primitive"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "action_dispatch_duration_seconds",
				Help:    "Action dispatcher invocation duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"primitive"},
		),
		ActionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_errors_total",
				Help: "Total number of failed REST action calls",
			},
			[]string{"method"},
		),

		PrimitivesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "automation_primitives_active",
				Help: "Number of enabled automation primitives by kind",
			},
			[]string{"kind"},
		),
		RuleFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rule_fires_total",
				Help: "Total number of rule evaluations that dispatched actions",
			},
			[]string{"rule_id"},
		),
		TimerFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timer_fires_total",
				Help: "Total number of timer fires that dispatched actions",
			},
			[]string{"timer_id"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.SAECompileTotal,
			m.SAEEvaluateDuration,
			m.SAEEvaluateErrors,
			m.DispatchTotal,
			m.DispatchDuration,
			m.ActionErrors,
			m.PrimitivesActive,
			m.RuleFiresTotal,
			m.TimerFiresTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordSAECompile records a compile attempt outcome ("ok" or "error").
func (m *Metrics) RecordSAECompile(result string) {
	m.SAECompileTotal.WithLabelValues(result).Inc()
}

// RecordSAEEvaluate records one SAE evaluation's duration for a primitive
// kind ("pairing", "rule", "timer").
func (m *Metrics) RecordSAEEvaluate(primitive string, duration time.Duration) {
	m.SAEEvaluateDuration.WithLabelValues(primitive).Observe(duration.Seconds())
}

// RecordSAEEvaluateError records an SAE evaluation failure.
func (m *Metrics) RecordSAEEvaluateError(primitive, reason string) {
	m.SAEEvaluateErrors.WithLabelValues(primitive, reason).Inc()
}

// RecordDispatch records one dispatcher invocation.
func (m *Metrics) RecordDispatch(primitive string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(primitive).Inc()
	m.DispatchDuration.WithLabelValues(primitive).Observe(duration.Seconds())
}

// RecordActionError records a failed REST action call.
func (m *Metrics) RecordActionError(method string) {
	m.ActionErrors.WithLabelValues(method).Inc()
}

// SetPrimitivesActive sets the gauge of currently enabled primitives for a
// kind ("pmgr", "rmgr", "tmgr").
func (m *Metrics) SetPrimitivesActive(kind string, count int) {
	m.PrimitivesActive.WithLabelValues(kind).Set(float64(count))
}

// RecordRuleFire records one rule firing.
func (m *Metrics) RecordRuleFire(ruleID string) {
	m.RuleFiresTotal.WithLabelValues(ruleID).Inc()
}

// RecordTimerFire records one timer firing.
func (m *Metrics) RecordTimerFire(timerID string) {
	m.TimerFiresTotal.WithLabelValues(timerID).Inc()
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

func getEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return getEnvironment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
