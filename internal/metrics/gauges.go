// =============================================================================
// 文件: internal/metrics/gauges.go
// 描述: 实时埋点指标 (Counter/Histogram) - 由追踪事件驱动
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrcgq/rdtsim/internal/sim"
	"github.com/mrcgq/rdtsim/internal/trace"
)

const namespace = "rdtsim"

// SimMetrics 全局指标集合, 实现 trace.Sink
type SimMetrics struct {
	// 追踪事件
	Events *prometheus.CounterVec

	// 提交到交付的延迟 (tick)
	DeliveryLatency *prometheus.HistogramVec

	// 交付违规
	Violations *prometheus.CounterVec
}

// NewSimMetrics 创建指标集合并注册到 registry
func NewSimMetrics(registry *prometheus.Registry) *SimMetrics {
	m := &SimMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_events_total",
			Help:      "Total simulation trace events",
		}, []string{"variant", "component", "kind"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_ticks",
			Help:      "Virtual ticks from submit to in-order delivery",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"variant"}),

		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_violations_total",
			Help:      "Duplicate or out-of-order deliveries seen by the receiving application",
		}, []string{"variant"}),
	}

	if registry != nil {
		registry.MustRegister(m.Events, m.DeliveryLatency, m.Violations)
	}
	return m
}

// Record 实现 trace.Sink
func (m *SimMetrics) Record(ev trace.Event) {
	m.Events.WithLabelValues(ev.Variant, ev.Component, string(ev.Kind)).Inc()
	if ev.Kind == trace.KindAppViolation {
		m.Violations.WithLabelValues(ev.Variant).Inc()
	}
}

// ObserveLatency 记录一次交付延迟
func (m *SimMetrics) ObserveLatency(variant string, ticks sim.Time) {
	m.DeliveryLatency.WithLabelValues(variant).Observe(float64(ticks))
}
