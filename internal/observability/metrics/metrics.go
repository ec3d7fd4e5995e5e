// Package metrics exposes Prometheus instrumentation for the session engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// SimulationMetrics exposes counters for session and dispatch flows.
// All observe methods are nil-safe so wiring metrics stays optional.
type SimulationMetrics struct {
	sessionsCreated *prometheus.CounterVec
	sessionsClosed  *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	stageAdvances   prometheus.Counter
}

// NewSimulationMetrics registers the simulation collectors on reg, falling
// back to the default registerer when reg is nil.
func NewSimulationMetrics(reg prometheus.Registerer) *SimulationMetrics {
	m := &SimulationMetrics{
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emergensee",
			Subsystem: "simulation",
			Name:      "sessions_created_total",
			Help:      "Total sessions created",
		}, []string{"module"}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emergensee",
			Subsystem: "simulation",
			Name:      "sessions_closed_total",
			Help:      "Total sessions closed by final status",
		}, []string{"status"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emergensee",
			Subsystem: "simulation",
			Name:      "dispatch_total",
			Help:      "Total learner message dispatches by outcome",
		}, []string{"outcome"}),
		stageAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emergensee",
			Subsystem: "simulation",
			Name:      "stage_advances_total",
			Help:      "Total stage transitions across all sessions",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsCreated, m.sessionsClosed, m.dispatchTotal, m.stageAdvances)
	return m
}

// ObserveSessionCreated counts one created session.
func (m *SimulationMetrics) ObserveSessionCreated(moduleID string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(moduleID).Inc()
}

// ObserveSessionClosed counts one session reaching a terminal status.
func (m *SimulationMetrics) ObserveSessionClosed(status string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(status).Inc()
}

// ObserveDispatch counts one dispatch with its outcome label.
func (m *SimulationMetrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

// ObserveStageAdvance counts one stage transition.
func (m *SimulationMetrics) ObserveStageAdvance() {
	if m == nil {
		return
	}
	m.stageAdvances.Inc()
}
