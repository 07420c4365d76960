// Package metrics exposes pipeline and HTTP metrics through a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Namespace = "docstruct"

	SubsystemHTTP        = "http"
	SubsystemPipeline    = "pipeline"
	SubsystemRecognition = "recognition"
)

// Metrics collects everything the service reports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge

	apiTime       *prometheus.HistogramVec
	httpRequests  prometheus.Counter
	httpErrors    prometheus.Counter
	documents     *prometheus.CounterVec
	stageTime     *prometheus.HistogramVec
	chunks        *prometheus.CounterVec
	tablesRemoved prometheus.Counter
	warnings      prometheus.Counter
	recognitions  *prometheus.CounterVec
	recognitionT  *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "start_timestamp_seconds",
		Help:      "The time the service started.",
	})
	m.startTime.SetToCurrentTime()

	m.apiTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemHTTP,
		Name:      "time_seconds",
		Help:      "Time to execute the api handler.",
	}, []string{"handler", "method", "status_code"})

	m.httpRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	})
	m.httpErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemHTTP,
		Name:      "errors_total",
		Help:      "The total number of http API responses with status >= 500.",
	})

	m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "documents_total",
		Help:      "Documents processed, by outcome and header rule kind.",
	}, []string{"outcome", "rules"})

	m.stageTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "stage_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
	}, []string{"stage"})

	m.chunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "chunks_total",
		Help:      "Chunks produced, by chunk mode.",
	}, []string{"mode"})

	m.tablesRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "tables_removed_total",
		Help:      "Pipe tables stripped from structured text.",
	})
	m.warnings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "warnings_total",
		Help:      "Degraded-mode warnings attached to results.",
	})

	m.recognitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemRecognition,
		Name:      "calls_total",
		Help:      "Recognition engine invocations, by engine and outcome.",
	}, []string{"engine", "outcome"})
	m.recognitionT = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemRecognition,
		Name:      "time_seconds",
		Help:      "Recognition engine wall time.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"engine"})

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: SubsystemPipeline,
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker.",
	})

	m.registry.MustRegister(m.startTime, m.apiTime, m.httpRequests, m.httpErrors,
		m.documents, m.stageTime, m.chunks, m.tablesRemoved, m.warnings,
		m.recognitions, m.recognitionT, m.queueDepth)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPIEndpointDuration(handler, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiTime.With(prometheus.Labels{
		"handler":     handler,
		"method":      method,
		"status_code": strconv.Itoa(status),
	}).Observe(elapsed.Seconds())
	m.httpRequests.Inc()
	if status >= 500 {
		m.httpErrors.Inc()
	}
}

// ObserveRecognition records one recognition engine call.
func (m *Metrics) ObserveRecognition(engine, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(engine, outcome).Inc()
	m.recognitionT.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageTime.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveDocument records a finished document. rules is the header rule
// kind, or "markup" for formats whose headings come from their source.
func (m *Metrics) ObserveDocument(outcome, rules, mode string, chunks, tables, warnings int) {
	if m == nil {
		return
	}
	if rules == "" {
		rules = "unknown"
	}
	m.documents.WithLabelValues(outcome, rules).Inc()
	if mode != "" {
		m.chunks.WithLabelValues(mode).Add(float64(chunks))
	}
	m.tablesRemoved.Add(float64(tables))
	m.warnings.Add(float64(warnings))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
