package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace — префикс всех метрик.
const Namespace = "sdtmflow"

// Metrics — Prometheus метрики выполнения flow.
//
// Все методы безопасны для nil-получателя: движок без метрик
// просто не публикует их.
type Metrics struct {
	// NodeExecutions — выполнения узлов по типу и статусу.
	NodeExecutions *prometheus.CounterVec

	// NodeDuration — время выполнения узлов (без попаданий в кэш).
	NodeDuration *prometheus.HistogramVec

	// CacheLookups — обращения к кэшу результатов (hit / miss).
	CacheLookups *prometheus.CounterVec

	// CachedOutputs — количество записей в кэше.
	CachedOutputs prometheus.Gauge

	// FlowRuns — запуски flow по итоговому статусу.
	FlowRuns *prometheus.CounterVec

	// FlowDuration — время выполнения flow целиком.
	FlowDuration prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, метрики не регистрируются (удобно для тестов).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_executions_total",
			Help:      "Number of node executions by kind and status.",
		}, []string{"kind", "status"}),

		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind"}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Output cache lookups by result.",
		}, []string{"result"}),

		CachedOutputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_outputs",
			Help:      "Number of node outputs currently cached.",
		}),

		FlowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flow_runs_total",
			Help:      "Number of flow executions by final status.",
		}, []string{"status"}),

		FlowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "flow_duration_seconds",
			Help:      "Flow execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.NodeExecutions,
			m.NodeDuration,
			m.CacheLookups,
			m.CachedOutputs,
			m.FlowRuns,
			m.FlowDuration,
		)
	}

	return m
}

// ObserveNode фиксирует выполнение узла.
func (m *Metrics) ObserveNode(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodeExecutions.WithLabelValues(kind, status).Inc()
	m.NodeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCache фиксирует обращение к кэшу.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetCachedOutputs обновляет размер кэша.
func (m *Metrics) SetCachedOutputs(n int) {
	if m == nil {
		return
	}
	m.CachedOutputs.Set(float64(n))
}

// ObserveRun фиксирует завершение flow.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FlowRuns.WithLabelValues(status).Inc()
	m.FlowDuration.Observe(d.Seconds())
}
