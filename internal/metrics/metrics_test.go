package metrics

import (
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveStepIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(metricStepsTotal.WithLabelValues("rx_entry"))
	ObserveStep("rx_entry")
	after := testutil.ToFloat64(metricStepsTotal.WithLabelValues("rx_entry"))
	require.Equal(t, before+1, after)
}

func TestObserveDiscardUsesCodeName(t *testing.T) {
	before := testutil.ToFloat64(metricDiscardsTotal.WithLabelValues("udp_circuit_not_found"))
	ObserveDiscard(pktbuf.CodeUDPCircuitNotFound)
	after := testutil.ToFloat64(metricDiscardsTotal.WithLabelValues("udp_circuit_not_found"))
	require.Equal(t, before+1, after)
}

func TestSetPPPStateRecordsGauge(t *testing.T) {
	SetPPPState(0, 3)
	require.Equal(t, float64(3), testutil.ToFloat64(metricPPPState.WithLabelValues("0")))
}
