package statusapi

import (
	"net/http"

	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the debug HTTP surface: interface/sub-interface/circuit
// introspection plus Prometheus metrics, the same /metrics wiring the
// teacher's main.go uses via promhttp.Handler().
func NewMux(table *iftable.Table) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/status/interfaces", ServeInterfacesHandler(table))
	mux.Handle("/status/subinterfaces", ServeSubInterfacesHandler(table))
	mux.Handle("/status/circuits", ServeCircuitsHandler(table))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
