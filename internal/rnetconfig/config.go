// Package rnetconfig loads the interface/sub-interface/circuit ROM tables
// and runtime test-mode flags from a JSON file, following the teacher's
// config-loading idiom (internal/config/config.go): a mutex-guarded
// struct built by Load, exposing read-only accessors.
package rnetconfig

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/malbeclabs/rnetd/internal/ipstack"
)

// InterfaceConfig is the JSON form of iftable.InterfaceStatic.
type InterfaceConfig struct {
	SubInterfaces  [3]int `json:"sub_interfaces"` // -1 for an unused slot
	LCPEnabled     bool   `json:"lcp_enabled"`
	IPCPEnabled    bool   `json:"ipcp_enabled"`
	IPV6CPEnabled  bool   `json:"ipv6cp_enabled"`
	PreTranslated  bool   `json:"pre_translated"`
	PreCRCVerified bool   `json:"pre_crc_verified"`
}

// SubInterfaceConfig is the JSON form of iftable.SubInterfaceStatic.
type SubInterfaceConfig struct {
	Parent      int    `json:"parent"`
	Kind        string `json:"kind"`        // ipv4_unicast | ipv6_link_local | ipv6_global
	Acquisition string `json:"acquisition"` // hardcoded | eui64 | learned
	PrefixLen   uint8  `json:"prefix_len"`
	LiteralAddr string `json:"literal_addr,omitempty"`
}

// CircuitConfig is the JSON form of iftable.Circuit's static fields.
type CircuitConfig struct {
	Kind             string `json:"kind"`
	Proto            string `json:"proto"` // udp | icmp | icmpv6
	SelfPort         uint16 `json:"self_port"`
	PeerPort         uint16 `json:"peer_port"`
	Subi             int    `json:"subi"`
	PeerAddr         string `json:"peer_addr,omitempty"`
	ListenerDisabled bool   `json:"listener_disabled"`
}

// TestModes are the runtime test-mode flags from spec.md §6: compile
// switches reinterpreted here as config so they can be flipped without
// rebuilding. PPPTestModeTimeScale > 1 divides TOR/TOP/TON (the
// SUPPLEMENTED FEATURES §3 addition in SPEC_FULL.md).
type TestModes struct {
	ServerModeLoopback        bool   `json:"server_mode_loopback"`
	IntfcCrossconnectTestMode bool   `json:"intfc_crossconnect_test_mode"`
	IPL3LoopbackTestMode      bool   `json:"ip_l3_loopback_test_mode"`
	PPPTestModeTimeScale      uint32 `json:"ppp_test_mode_time_scale"`
}

// Config is the parsed ROM table set plus test-mode flags.
type Config struct {
	Interfaces    []InterfaceConfig    `json:"interfaces"`
	SubInterfaces []SubInterfaceConfig `json:"sub_interfaces"`
	Circuits      []CircuitConfig      `json:"circuits"`
	TestModes     TestModes            `json:"test_modes"`

	mu sync.RWMutex
}

// Load reads and parses a config file; it fails only on an unreadable
// file or malformed JSON. ToIftable checks traffic kinds, acquisition
// methods, circuit protocols and address syntax/family; parent and
// sub-interface indices are not range-checked.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rnetconfig: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("rnetconfig: decode %s: %w", path, err)
	}
	if c.TestModes.PPPTestModeTimeScale == 0 {
		c.TestModes.PPPTestModeTimeScale = 1
	}
	return &c, nil
}

// TimeScale returns the configured PPP timer divisor (1 = unscaled).
func (c *Config) TimeScale() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TestModes.PPPTestModeTimeScale
}

func parseKind(s string) (iftable.TrafficKind, error) {
	switch s {
	case "ipv4_unicast":
		return iftable.KindIPv4Unicast, nil
	case "ipv6_link_local":
		return iftable.KindIPv6LinkLocal, nil
	case "ipv6_global":
		return iftable.KindIPv6Global, nil
	default:
		return 0, fmt.Errorf("rnetconfig: unknown traffic kind %q", s)
	}
}

func parseAcquisition(s string) (iftable.AcquisitionMethod, error) {
	switch s {
	case "hardcoded", "":
		return iftable.AcqHardcoded, nil
	case "eui64":
		return iftable.AcqEUI64, nil
	case "learned":
		return iftable.AcqLearned, nil
	default:
		return 0, fmt.Errorf("rnetconfig: unknown acquisition method %q", s)
	}
}

func parseProto(s string) (uint8, error) {
	switch s {
	case "udp":
		return ipstack.ProtoUDP, nil
	case "icmp":
		return ipstack.ProtoICMP, nil
	case "icmpv6":
		return ipstack.ProtoICMPv6, nil
	default:
		return 0, fmt.Errorf("rnetconfig: unknown circuit protocol %q", s)
	}
}

func parseAddr(s string, isV6 bool) ([]byte, error) {
	if s == "" {
		if isV6 {
			return make([]byte, 16), nil
		}
		return make([]byte, 4), nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("rnetconfig: invalid address %q", s)
	}
	if isV6 {
		return []byte(ip.To16()), nil
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("rnetconfig: %q is not an IPv4 address", s)
	}
	return []byte(v4), nil
}

// ToIftable converts the parsed JSON config into the iftable ROM types,
// resolving literal addresses to their binary form.
func (c *Config) ToIftable() ([]iftable.InterfaceStatic, []iftable.SubInterfaceStatic, []iftable.Circuit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subis := make([]iftable.SubInterfaceStatic, len(c.SubInterfaces))
	for i, s := range c.SubInterfaces {
		kind, err := parseKind(s.Kind)
		if err != nil {
			return nil, nil, nil, err
		}
		acq, err := parseAcquisition(s.Acquisition)
		if err != nil {
			return nil, nil, nil, err
		}
		isV6 := kind != iftable.KindIPv4Unicast
		addr, err := parseAddr(s.LiteralAddr, isV6)
		if err != nil {
			return nil, nil, nil, err
		}
		subis[i] = iftable.SubInterfaceStatic{
			Parent:      uint8(s.Parent),
			Kind:        kind,
			Acquisition: acq,
			PrefixLen:   s.PrefixLen,
			LiteralAddr: addr,
		}
	}

	intfcs := make([]iftable.InterfaceStatic, len(c.Interfaces))
	for i, in := range c.Interfaces {
		var subiIdx [3]uint8
		for j, v := range in.SubInterfaces {
			if v < 0 {
				subiIdx[j] = iftable.NoSubi
			} else {
				subiIdx[j] = uint8(v)
			}
		}
		intfcs[i] = iftable.InterfaceStatic{
			SubiIdx:        subiIdx,
			LCPEnabled:     in.LCPEnabled,
			IPCPEnabled:    in.IPCPEnabled,
			IPV6CPEnabled:  in.IPV6CPEnabled,
			PreTranslated:  in.PreTranslated,
			PreCRCVerified: in.PreCRCVerified,
		}
	}

	circuits := make([]iftable.Circuit, len(c.Circuits))
	for i, cc := range c.Circuits {
		kind, err := parseKind(cc.Kind)
		if err != nil {
			return nil, nil, nil, err
		}
		proto, err := parseProto(cc.Proto)
		if err != nil {
			return nil, nil, nil, err
		}
		isV6 := kind != iftable.KindIPv4Unicast
		addr, err := parseAddr(cc.PeerAddr, isV6)
		if err != nil {
			return nil, nil, nil, err
		}
		listenerMsgFields := uint32(0)
		if cc.ListenerDisabled {
			listenerMsgFields = iftable.ListenerDisabled
		}
		circuits[i] = iftable.Circuit{
			Active:            true,
			Kind:              kind,
			Proto:             proto,
			SelfPort:          cc.SelfPort,
			PeerPort:          cc.PeerPort,
			Subi:              uint8(cc.Subi),
			PeerAddr:          addr,
			ListenerMsgFields: listenerMsgFields,
		}
	}

	return intfcs, subis, circuits, nil
}
