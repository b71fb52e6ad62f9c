// Package metrics exposes the enclave's Prometheus instrumentation,
// grounded on banhbaoring's use of github.com/prometheus/client_golang
// for its signing-plugin counters — the same registration/collector
// pattern, pointed at this enclave's protocol and pivot-supervision
// events instead of key-signing operations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter and gauge the enclave emits.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	PhaseTransitions  *prometheus.CounterVec
	CurrentPhase      prometheus.Gauge
	PivotRestarts     prometheus.Counter
	ShardsAccepted    prometheus.Counter
	ProtocolErrors    *prometheus.CounterVec
}

// New constructs and registers every metric against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qos_enclave_requests_total",
			Help: "Total protocol requests handled, by message type.",
		}, []string{"message_type"}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qos_enclave_phase_transitions_total",
			Help: "Total phase machine transitions, by destination phase.",
		}, []string{"phase"}),
		CurrentPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qos_enclave_current_phase",
			Help: "The enclave's current phase, as its numeric discriminant.",
		}),
		PivotRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qos_enclave_pivot_restarts_total",
			Help: "Total times the coordinator has respawned the pivot binary.",
		}),
		ShardsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qos_enclave_shards_accepted_total",
			Help: "Total quorum key shards accepted during provisioning, including idempotent duplicates.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qos_enclave_protocol_errors_total",
			Help: "Total protocol error responses, by error kind.",
		}, []string{"error_kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.PhaseTransitions,
		m.CurrentPhase,
		m.PivotRestarts,
		m.ShardsAccepted,
		m.ProtocolErrors,
	)
	return m
}
