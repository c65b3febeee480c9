// Package metrics exposes Prometheus counters for the conversation pipeline.
// All methods are safe to call on a nil *Metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "leadpipe"

// Metrics groups the pipeline's collectors.
type Metrics struct {
	inboundTotal  *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	effectsTotal  *prometheus.CounterVec
	leadsTotal    *prometheus.CounterVec
	stepLatency   *prometheus.HistogramVec
}

// New registers the collectors on reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Inbound messages by vertical and handling status",
		}, []string{"vertical", "status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "steps_total",
			Help:      "Dialogue steps by vertical and outcome",
		}, []string{"vertical", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "messages_total",
			Help:      "Outbound messages by kind and status",
		}, []string{"kind", "status"}),
		effectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "effects",
			Name:      "tasks_total",
			Help:      "Side-effect tasks by name and status",
		}, []string{"task", "status"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "completed_total",
			Help:      "Completed lead records by vertical and kind",
		}, []string{"vertical", "kind"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "handle_seconds",
			Help:      "Time to handle one inbound message including replies",
			Buckets:   prometheus.DefBuckets,
		}, []string{"vertical"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.stepsTotal, m.outboundTotal, m.effectsTotal, m.leadsTotal, m.stepLatency)
	return m
}

func (m *Metrics) ObserveInbound(vertical, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(vertical, status).Inc()
}

func (m *Metrics) ObserveStep(vertical, outcome string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(vertical, outcome).Inc()
}

func (m *Metrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status(err)).Inc()
}

func (m *Metrics) ObserveEffect(task string, err error) {
	if m == nil {
		return
	}
	m.effectsTotal.WithLabelValues(task, status(err)).Inc()
}

// ObservePanic counts a side-effect task that panicked.
func (m *Metrics) ObservePanic(task string) {
	if m == nil {
		return
	}
	m.effectsTotal.WithLabelValues(task, "panic").Inc()
}

func (m *Metrics) ObserveLead(vertical, kind string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(vertical, kind).Inc()
}

func (m *Metrics) ObserveHandleLatency(vertical string, seconds float64) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(vertical).Observe(seconds)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
