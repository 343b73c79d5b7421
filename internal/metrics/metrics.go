// Package metrics holds the Prometheus instrumentation shared by the dojo
// components. Collectors register with the default registry on import, so
// Handler serves everything recorded here.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dojo"

var (
	// patternsIngested counts ingestion attempts.
	// Labels: field, outcome (validated, rejected, duplicate, unknown_field, malformed, busy, error)
	patternsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "patterns",
		Name:      "ingested_total",
		Help:      "Pattern ingestion attempts by field and outcome",
	}, []string{"field", "outcome"})

	// relationshipsLinked counts accepted edges.
	// Labels: kind
	relationshipsLinked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "links_total",
		Help:      "Relationships accepted by kind",
	}, []string{"kind"})

	// linkRejections counts refused edges.
	// Labels: code
	linkRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "link_rejections_total",
		Help:      "Relationships refused by error code",
	}, []string{"code"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "arena",
		Name:      "queue_depth",
		Help:      "Tasks currently waiting in the arena queue",
	})

	// taskOutcomes counts finished tasks.
	// Labels: outcome (completed, failed, cancelled, overflow)
	taskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "arena",
		Name:      "task_outcomes_total",
		Help:      "Task outcomes",
	}, []string{"outcome"})

	// specialistTransitions counts lifecycle transitions.
	// Labels: from, to
	specialistTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "arena",
		Name:      "specialist_transitions_total",
		Help:      "Specialist state transitions",
	}, []string{"from", "to"})

	compressionRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "arena",
		Name:      "compression_ratio",
		Help:      "Benchmarked specialist compression ratios",
		Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// privilegeDecisions counts gate decisions.
	// Labels: level, action, decision (allowed, denied)
	privilegeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "privilege",
		Name:      "decisions_total",
		Help:      "Privilege gate decisions",
	}, []string{"level", "action", "decision"})

	// privilegeEscalations counts escalation requests and their approvals.
	// Labels: to, outcome (requested, approved, denied)
	privilegeEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "privilege",
		Name:      "escalations_total",
		Help:      "Privilege escalation requests and decisions",
	}, []string{"to", "outcome"})
	// lockTimeouts counts bounded waits that expired.
	// Labels: resource
	lockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lock",
		Name:      "timeouts_total",
		Help:      "Lock acquisitions that gave up after the bounded wait",
	}, []string{"resource"})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest counts one ingestion attempt.
func RecordIngest(field, outcome string) {
	patternsIngested.WithLabelValues(field, outcome).Inc()
}

// RecordLink counts an accepted relationship.
func RecordLink(kind string) {
	relationshipsLinked.WithLabelValues(kind).Inc()
}

// RecordLinkRejection counts a refused relationship.
func RecordLinkRejection(code string) {
	linkRejections.WithLabelValues(code).Inc()
}

// SetQueueDepth publishes the current queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordTaskOutcome counts a finished task.
func RecordTaskOutcome(outcome string) {
	taskOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a specialist state change.
func RecordTransition(from, to string) {
	specialistTransitions.WithLabelValues(from, to).Inc()
}

// ObserveCompressionRatio records a benchmark result.
func ObserveCompressionRatio(ratio float64) {
	compressionRatio.Observe(ratio)
}

// RecordPrivilegeDecision counts a gate decision.
func RecordPrivilegeDecision(level, action string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	privilegeDecisions.WithLabelValues(level, action, decision).Inc()
}

// RecordEscalation counts an escalation request or decision.
func RecordEscalation(to, outcome string) {
	privilegeEscalations.WithLabelValues(to, outcome).Inc()
}

// RecordLockTimeout counts an expired bounded wait.
func RecordLockTimeout(resource string) {
	lockTimeouts.WithLabelValues(resource).Inc()
}
