// Package statusapi implements the debug/introspection HTTP endpoints
// exposing interface, sub-interface and circuit state (grounded on the
// teacher's internal/api/routes.go: a http.HandlerFunc factory per
// resource, JSON-encoded, sorted for stable output).
package statusapi

import (
	"encoding/json"
	"net"
	"net/http"
	"sort"

	"github.com/malbeclabs/rnetd/internal/iftable"
)

// InterfaceStatus is the JSON view of one interface's static config and
// live PPP link-control state.
type InterfaceStatus struct {
	Index             uint8  `json:"index"`
	LCPEnabled        bool   `json:"lcp_enabled"`
	IPCPEnabled       bool   `json:"ipcp_enabled"`
	IPV6CPEnabled     bool   `json:"ipv6cp_enabled"`
	LinkState         string `json:"link_state"`
	TxID              uint8  `json:"tx_id"`
	RxID              uint8  `json:"rx_id"`
	CompletionCounter int    `json:"completion_counter"`
}

// SubInterfaceStatus is the JSON view of one sub-interface's config and
// learned/effective address.
type SubInterfaceStatus struct {
	Index         uint8  `json:"index"`
	Parent        uint8  `json:"parent"`
	Kind          string `json:"kind"`
	Acquisition   string `json:"acquisition"`
	PrefixLen     uint8  `json:"prefix_len"`
	EffectiveAddr string `json:"effective_addr,omitempty"`
}

// CircuitStatus is the JSON view of one circuit slot.
type CircuitStatus struct {
	Index    uint8  `json:"index"`
	Active   bool   `json:"active"`
	Kind     string `json:"kind"`
	Proto    string `json:"proto"`
	SelfPort uint16 `json:"self_port"`
	PeerPort uint16 `json:"peer_port"`
	Subi     uint8  `json:"subi"`
	PeerAddr string `json:"peer_addr,omitempty"`
}

func kindString(k iftable.TrafficKind) string {
	switch k {
	case iftable.KindIPv4Unicast:
		return "ipv4_unicast"
	case iftable.KindIPv6LinkLocal:
		return "ipv6_link_local"
	case iftable.KindIPv6Global:
		return "ipv6_global"
	default:
		return "unknown"
	}
}

func acquisitionString(a iftable.AcquisitionMethod) string {
	switch a {
	case iftable.AcqHardcoded:
		return "hardcoded"
	case iftable.AcqEUI64:
		return "eui64"
	case iftable.AcqLearned:
		return "learned"
	default:
		return "unknown"
	}
}

func protoString(p uint8) string {
	switch p {
	case 17:
		return "udp"
	case 1:
		return "icmp"
	case 58:
		return "icmpv6"
	default:
		return "unknown"
	}
}

// addrString renders an address slice, collapsing an all-zero wildcard to
// the empty string so callers can mark it omitempty.
func addrString(b []byte) string {
	for _, v := range b {
		if v != 0 {
			return net.IP(b).String()
		}
	}
	return ""
}

// ServeInterfacesHandler lists every configured interface's static config
// and PPP link-control state.
func ServeInterfacesHandler(table *iftable.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]InterfaceStatus, 0, len(table.Interfaces))
		for i, in := range table.Interfaces {
			out = append(out, InterfaceStatus{
				Index:             uint8(i),
				LCPEnabled:        in.Static.LCPEnabled,
				IPCPEnabled:       in.Static.IPCPEnabled,
				IPV6CPEnabled:     in.Static.IPV6CPEnabled,
				LinkState:         in.Link.State.String(),
				TxID:              in.Link.TxID,
				RxID:              in.Link.RxID,
				CompletionCounter: in.Link.CompletionCounter,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "failed to encode interfaces", http.StatusInternalServerError)
		}
	}
}

// ServeSubInterfacesHandler lists every sub-interface's config and
// effective (learned or literal) address.
func ServeSubInterfacesHandler(table *iftable.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]SubInterfaceStatus, 0, len(table.SubInterfaces))
		for i, s := range table.SubInterfaces {
			out = append(out, SubInterfaceStatus{
				Index:         uint8(i),
				Parent:        s.Static.Parent,
				Kind:          kindString(s.Static.Kind),
				Acquisition:   acquisitionString(s.Static.Acquisition),
				PrefixLen:     s.EffectivePrefixLen,
				EffectiveAddr: addrString(s.EffectiveAddr),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "failed to encode sub-interfaces", http.StatusInternalServerError)
		}
	}
}

// ServeCircuitsHandler lists every circuit slot, active or not, sorted by
// index for stable output across calls.
func ServeCircuitsHandler(table *iftable.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		circuits := table.Circuits()
		out := make([]CircuitStatus, 0, len(circuits))
		for i, c := range circuits {
			out = append(out, CircuitStatus{
				Index:    uint8(i),
				Active:   c.Active,
				Kind:     kindString(c.Kind),
				Proto:    protoString(c.Proto),
				SelfPort: c.SelfPort,
				PeerPort: c.PeerPort,
				Subi:     c.Subi,
				PeerAddr: addrString(c.PeerAddr),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "failed to encode circuits", http.StatusInternalServerError)
		}
	}
}
