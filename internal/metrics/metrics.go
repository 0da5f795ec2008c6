// Package metrics holds the Prometheus collectors for the packet-pump
// core: per-step counters, per-interface PPP-state gauges, and a discard
// counter vector keyed by code, grounded on the teacher's promauto style
// (internal/runtime/metrics.go, internal/liveness/metrics.go).
package metrics

import (
	"strconv"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelStep  = "step"
	labelCode  = "code"
	labelIntfc = "intfc"
)

var (
	metricStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnetd_pump_steps_total",
			Help: "Total number of work items processed by the pump, by step",
		},
		[]string{labelStep},
	)

	metricDiscardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnetd_pump_discards_total",
			Help: "Total number of packets freed at the discard step, by code",
		},
		[]string{labelCode},
	)

	metricPPPState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rnetd_ppp_link_state",
			Help: "Current PPP link-control state per interface (0=recovery,1=probing,2=negotiating,3=up)",
		},
		[]string{labelIntfc},
	)

	metricCircuitsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rnetd_circuits_active",
			Help: "Number of currently active circuit slots",
		},
	)
)

// ObserveStep increments the per-step processed counter.
func ObserveStep(step string) {
	metricStepsTotal.WithLabelValues(step).Inc()
}

// ObserveDiscard increments the discard counter for a drop code.
func ObserveDiscard(code pktbuf.DiscardCode) {
	metricDiscardsTotal.WithLabelValues(code.String()).Inc()
}

// SetPPPState records an interface's current link-control state.
func SetPPPState(intfc uint8, state int) {
	metricPPPState.WithLabelValues(strconv.Itoa(int(intfc))).Set(float64(state))
}

// SetCircuitsActive records the current active-circuit count.
func SetCircuitsActive(n int) {
	metricCircuitsActive.Set(float64(n))
}
