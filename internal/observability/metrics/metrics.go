package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters for the appointment lifecycle and automation engine.
type EngineMetrics struct {
	transitions    *prometheus.CounterVec
	arrivals       *prometheus.CounterVec
	ticketsExpired prometheus.Counter
	ticketOps      *prometheus.CounterVec
	ruleRuns       *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
	passLatency    prometheus.Histogram
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment state machine operations by result",
		}, []string{"operation", "result"}),
		arrivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "appointments",
			Name:      "arrival_outcomes_total",
			Help:      "Registered arrivals by lateness classification",
		}, []string{"outcome"}),
		ticketsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "open_tickets",
			Name:      "expired_total",
			Help:      "Open tickets expired by the sweeper",
		}),
		ticketOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "open_tickets",
			Name:      "operations_total",
			Help:      "Open ticket operations by result",
		}, []string{"operation", "result"}),
		ruleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "automation",
			Name:      "rule_runs_total",
			Help:      "Matched automation rules by outcome",
		}, []string{"outcome"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "automation",
			Name:      "action_failures_total",
			Help:      "Failed automation actions by action type",
		}, []string{"action"}),
		passLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "automation",
			Name:      "pass_latency_seconds",
			Help:      "Latency of one orchestrator pass over a subject",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.arrivals, m.ticketsExpired, m.ticketOps, m.ruleRuns, m.actionFailures, m.passLatency)
	return m
}

func (m *EngineMetrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *EngineMetrics) ObserveArrival(outcome string) {
	if m == nil {
		return
	}
	m.arrivals.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveTicketsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsExpired.Add(float64(n))
}

func (m *EngineMetrics) ObserveTicketOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.ticketOps.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *EngineMetrics) ObserveRuleRun(outcome string) {
	if m == nil {
		return
	}
	m.ruleRuns.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveActionFailure(action string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action).Inc()
}

func (m *EngineMetrics) ObservePassLatency(seconds float64) {
	if m == nil {
		return
	}
	m.passLatency.Observe(seconds)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
