package danfoss

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one session.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	state           *prometheus.GaugeVec
	available       prometheus.Gauge
	reinitAttempts  prometheus.Counter
	initFailures    prometheus.Counter
	transportErrors *prometheus.CounterVec
	parameters      *prometheus.CounterVec
	commands        *prometheus.CounterVec
	reports         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "danfoss_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "danfoss_session_available",
			Help: "Device availability (1=available, 0=unavailable)",
		}),
		reinitAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danfoss_reinit_attempts_total",
			Help: "Scheduled reinitialisation attempts that fired",
		}),
		initFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "danfoss_init_failures_total",
			Help: "Failed session initialisations",
		}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danfoss_transport_errors_total",
			Help: "Errors reported by the transport, by kind",
		}, []string{"kind"}),
		parameters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danfoss_parameters_total",
			Help: "Inbound parameters by outcome",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danfoss_commands_total",
			Help: "Capability writes by capability and outcome",
		}, []string{"capability", "outcome"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "danfoss_reported_errors_total",
			Help: "Messages and exceptions sent to the reporter",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.state,
			m.available,
			m.reinitAttempts,
			m.initFailures,
			m.transportErrors,
			m.parameters,
			m.commands,
			m.reports,
		)
	}
	return m
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, candidate := range allStates {
		v := 0.0
		if candidate == s {
			v = 1
		}
		m.state.WithLabelValues(candidate.String()).Set(v)
	}
}

func (m *Metrics) setAvailable(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.available.Set(1)
	} else {
		m.available.Set(0)
	}
}

func (m *Metrics) reinitFired() {
	if m != nil {
		m.reinitAttempts.Inc()
	}
}

func (m *Metrics) initFailed() {
	if m != nil {
		m.initFailures.Inc()
	}
}

func (m *Metrics) transportError(kind string) {
	if m != nil {
		m.transportErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) parameter(outcome string) {
	if m != nil {
		m.parameters.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) command(capability, outcome string) {
	if m != nil {
		m.commands.WithLabelValues(capability, outcome).Inc()
	}
}

func (m *Metrics) reported(kind string) {
	if m != nil {
		m.reports.WithLabelValues(kind).Inc()
	}
}
