package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics tracks repair request transitions and ticket code issuance.
type WorkflowMetrics struct {
	transitions      *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	sequenceFallback *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow metrics on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Applied repair request status transitions.",
	}, []string{"from", "to", "action"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_rejections_total",
		Help: "Workflow actions refused before any state change.",
	}, []string{"action", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_action_duration_seconds",
		Help:    "Time spent applying a workflow action, including the transaction.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_fallback_total",
		Help: "Ticket codes issued with a random suffix because the sequence store failed.",
	}, []string{"device"})
	reg.MustRegister(transitions, rejections, duration, fallback)
	return &WorkflowMetrics{
		transitions:      transitions,
		rejections:       rejections,
		duration:         duration,
		sequenceFallback: fallback,
	}
}

// IncTransition counts a committed transition.
func (m *WorkflowMetrics) IncTransition(from, to, action string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(action)).Inc()
}

// IncRejection counts an action refused with the given reason code.
func (m *WorkflowMetrics) IncRejection(action, reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(action), normalizeLabel(reason)).Inc()
}

func (m *WorkflowMetrics) ObserveDuration(action string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(action)).Observe(d.Seconds())
}

// IncSequenceFallback counts a degraded ticket code.
func (m *WorkflowMetrics) IncSequenceFallback(device string) {
	if m == nil || m.sequenceFallback == nil {
		return
	}
	m.sequenceFallback.WithLabelValues(normalizeLabel(device)).Inc()
}
