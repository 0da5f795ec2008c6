// Package iftable holds the interface/sub-interface/circuit ROM+RAM
// tables described in spec.md §3 and §4.8: static configuration plus the
// mutable state built at init and touched at runtime (PPP link state,
// learned sub-interface addresses, dynamic circuit slots).
package iftable

import (
	"errors"
	"sync"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/malbeclabs/rnetd/internal/ppp"
)

// TrafficKind names the address family/scope a sub-interface or circuit
// carries (spec.md §3).
type TrafficKind uint8

const (
	KindIPv4Unicast TrafficKind = iota
	KindIPv6LinkLocal
	KindIPv6Global
)

// AcquisitionMethod names how a sub-interface's effective address is set.
type AcquisitionMethod uint8

const (
	AcqHardcoded AcquisitionMethod = iota
	AcqEUI64
	AcqLearned
)

// NoSubi marks an interface's child-subinterface slot as unused.
const NoSubi uint8 = 0xff

// ListenerDisabled is the circuit listener sentinel meaning "no delivery"
// (spec.md §6).
const ListenerDisabled uint32 = 0xffffffff

var (
	ErrInvalidInterface = errors.New("iftable: invalid interface index")
	ErrNoSpareCircuit    = errors.New("iftable: no spare circuit slot")
	ErrCircuitNotFound   = errors.New("iftable: circuit index not found")
)

// InterfaceStatic is an interface's compile-time configuration (ROM).
type InterfaceStatic struct {
	SubiIdx        [3]uint8 // NoSubi for unused slots
	LCPEnabled     bool
	IPCPEnabled    bool
	IPV6CPEnabled  bool
	PreTranslated  bool // driver already stripped AHDLC delimiters/cc
	PreCRCVerified bool // driver already verified the frame CRC
	TxDriver       func(pktbuf.Packet)
}

// Interface is one interface's static config plus its dynamic PPP link
// state and per-interface timer.
type Interface struct {
	Static InterfaceStatic
	Link   *ppp.Link
	Timer  *ppp.RearmableTimer
}

// SubInterfaceStatic is a sub-interface's compile-time configuration.
type SubInterfaceStatic struct {
	Parent      uint8
	Kind        TrafficKind
	Acquisition AcquisitionMethod
	PrefixLen   uint8
	LiteralAddr []byte // nil unless Acquisition == AcqHardcoded/AcqEUI64
}

// SubInterface is one sub-interface's static config plus learned state.
type SubInterface struct {
	Static             SubInterfaceStatic
	EffectivePrefixLen uint8
	EffectiveAddr      []byte // nil/all-zero until learned
}

func (s *SubInterface) isLearnable() bool {
	return s.Static.Acquisition == AcqLearned && isZero(s.EffectiveAddr)
}

// Circuit is one demux slot (spec.md §3): static ROM config plus the
// active flag and listener binding that circuit_add/circuit_delete
// manage dynamically.
type Circuit struct {
	Active            bool
	Kind              TrafficKind
	Proto             uint8
	SelfPort          uint16
	PeerPort          uint16 // 0 = server-mode wildcard
	Subi              uint8
	PeerAddr          []byte // nil/all-zero = wildcard
	ListenerMsgFields uint32
	Deliver           func(pktbuf.Packet)
}

// Table is the whole ROM+RAM table set. Interfaces and sub-interfaces are
// fixed after Init; only circuits need a lock, since circuit_add/delete
// is the sole mutable structure touched outside the single pump task
// (spec.md §5: "Dynamic circuit add/delete requires mutual exclusion").
type Table struct {
	Interfaces    []Interface
	SubInterfaces []SubInterface

	mu       sync.Mutex
	circuits []Circuit
}

// Init builds the dynamic state for a configured set of interfaces,
// sub-interfaces and circuits: it allocates each PPP interface's
// rearmable timer via newTimer (bound by the caller to that interface's
// index so timeouts can be routed back to the pump) and posts EvInit to
// its link, per spec.md §4.8.
func Init(intfcs []InterfaceStatic, subis []SubInterfaceStatic, circuits []Circuit, newTimer func(intfcIdx int) *ppp.RearmableTimer) *Table {
	t := &Table{
		SubInterfaces: make([]SubInterface, len(subis)),
		circuits:      append([]Circuit{}, circuits...),
	}
	for i, s := range subis {
		t.SubInterfaces[i] = SubInterface{Static: s, EffectivePrefixLen: s.PrefixLen, EffectiveAddr: append([]byte{}, s.LiteralAddr...)}
	}

	t.Interfaces = make([]Interface, len(intfcs))
	for i, s := range intfcs {
		intfc := Interface{Static: s}
		intfc.Timer = newTimer(i)
		opts := ppp.Options{IPCPEnabled: s.IPCPEnabled, IPV6CPEnabled: s.IPV6CPEnabled}
		intfc.Link = ppp.NewLink(opts, intfc.Timer)
		t.Interfaces[i] = intfc
	}
	for i := range t.Interfaces {
		t.Interfaces[i].Link.Event(ppp.EvInit)
	}
	return t
}

// IsValid reports whether intfc names a configured interface.
func (t *Table) IsValid(intfc uint8) bool {
	return int(intfc) < len(t.Interfaces)
}

// InterfaceAt returns a configured interface, or ErrInvalidInterface.
func (t *Table) InterfaceAt(intfc uint8) (*Interface, error) {
	if !t.IsValid(intfc) {
		return nil, ErrInvalidInterface
	}
	return &t.Interfaces[intfc], nil
}

// SubiLookup finds the sub-interface under intfc whose effective address
// exactly matches addr/isV6, per spec.md §4.8.
func (t *Table) SubiLookup(intfc uint8, addr []byte, isV6 bool) (uint8, bool) {
	in, err := t.InterfaceAt(intfc)
	if err != nil {
		return 0, false
	}
	for _, idx := range in.Static.SubiIdx {
		if idx == NoSubi || int(idx) >= len(t.SubInterfaces) {
			continue
		}
		s := &t.SubInterfaces[idx]
		if subiIsV6(s.Static.Kind) != isV6 {
			continue
		}
		if addrEqual(s.EffectiveAddr, addr) {
			return idx, true
		}
	}
	return 0, false
}

// SubiAttemptAndLearn populates the first unlearned sub-interface of a
// matching kind under intfc with addr (spec.md §4.8's address-learning
// path, used when a sub-interface's Acquisition is AcqLearned).
func (t *Table) SubiAttemptAndLearn(intfc uint8, addr []byte, isV6 bool) (uint8, bool) {
	in, err := t.InterfaceAt(intfc)
	if err != nil {
		return 0, false
	}
	for _, idx := range in.Static.SubiIdx {
		if idx == NoSubi || int(idx) >= len(t.SubInterfaces) {
			continue
		}
		s := &t.SubInterfaces[idx]
		if subiIsV6(s.Static.Kind) != isV6 || !s.isLearnable() {
			continue
		}
		s.EffectiveAddr = append([]byte{}, addr...)
		if isV6 {
			s.EffectivePrefixLen = 128
		} else {
			s.EffectivePrefixLen = 32
		}
		return idx, true
	}
	return 0, false
}

// CircuitLookup finds an active circuit bound to subi+proto whose ports
// and peer address match, honoring the symmetric wildcard rule of
// spec.md §4.6/§8 invariant 4: a 0 port or all-zero address on either
// side (query or stored) is treated as "don't care".
func (t *Table) CircuitLookup(subi uint8, proto uint8, selfPort, peerPort uint16, peerAddr []byte) (uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.circuits {
		if !c.Active || c.Subi != subi || c.Proto != proto {
			continue
		}
		if !portMatch(c.SelfPort, selfPort) || !portMatch(c.PeerPort, peerPort) {
			continue
		}
		if !addrMatch(c.PeerAddr, peerAddr) {
			continue
		}
		return uint8(i), true
	}
	return 0, false
}

// CircuitAt returns a copy of the circuit at idx.
func (t *Table) CircuitAt(idx uint8) (Circuit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.circuits) || !t.circuits[idx].Active {
		return Circuit{}, ErrCircuitNotFound
	}
	return t.circuits[idx], nil
}

// CircuitAdd installs c into the first inactive slot and returns its
// index, or ErrNoSpareCircuit if every slot is active.
func (t *Table) CircuitAdd(c Circuit) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.circuits {
		if !t.circuits[i].Active {
			c.Active = true
			t.circuits[i] = c
			return uint8(i), nil
		}
	}
	return 0, ErrNoSpareCircuit
}

// Circuits returns a snapshot of every circuit slot, active or not, for
// introspection tooling (the debug status API).
func (t *Table) Circuits() []Circuit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Circuit, len(t.circuits))
	copy(out, t.circuits)
	return out
}

// ActiveCircuitCount reports how many circuit slots are currently active.
func (t *Table) ActiveCircuitCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.circuits {
		if c.Active {
			n++
		}
	}
	return n
}

// CircuitDelete marks idx inactive, freeing its slot for CircuitAdd.
func (t *Table) CircuitDelete(idx uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.circuits) {
		return ErrCircuitNotFound
	}
	t.circuits[idx] = Circuit{}
	return nil
}

func subiIsV6(k TrafficKind) bool { return k == KindIPv6LinkLocal || k == KindIPv6Global }

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func addrEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func addrMatch(stored, query []byte) bool {
	return isZero(stored) || isZero(query) || addrEqual(stored, query)
}

func portMatch(stored, query uint16) bool {
	return stored == 0 || query == 0 || stored == query
}
