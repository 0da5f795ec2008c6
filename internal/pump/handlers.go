package pump

import (
	"context"

	"github.com/malbeclabs/rnetd/internal/ahdlc"
	"github.com/malbeclabs/rnetd/internal/events"
	"github.com/malbeclabs/rnetd/internal/icmpecho"
	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/malbeclabs/rnetd/internal/ipstack"
	"github.com/malbeclabs/rnetd/internal/metrics"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/malbeclabs/rnetd/internal/ppp"
	"github.com/malbeclabs/rnetd/internal/udpdemux"
)

// defaultTTL/HopLimit is the value stamped on locally-originated IPv4/IPv6
// replies (ICMP echo, UDP); the core never forwards, so a single fixed
// value suffices (spec.md §4.5, §4.7 Tx paths don't specify one).
const defaultTTL = 64

// controlFrameHeadroom/Tailroom size the fixed-capacity control-frame
// pool: room for AHDLC/PPP Tx prefixing ahead, CRC+flag+worst-case
// stuffing behind. LCP/IPCP/IPV6CP CONF_REQ/TERM_REQ content never
// exceeds a handful of bytes (spec.md §4.4).
const (
	controlFrameHeadroom = 16
	controlFrameTailroom = 16
)

var handlers = map[StepID]func(*Pump, WorkItem){
	StepRxEntry:         (*Pump).stepRxEntry,
	StepAHDLCStripCC:    (*Pump).stepAHDLCStripCC,
	StepAHDLCVerifyCRC:  (*Pump).stepAHDLCVerifyCRC,
	StepPPP:             (*Pump).stepPPP,
	StepLCP:             (*Pump).stepXCP,
	StepIPCP:            (*Pump).stepXCP,
	StepIPV6CP:          (*Pump).stepXCP,
	StepIPv4:            (*Pump).stepIPv4,
	StepIPv6:            (*Pump).stepIPv6,
	StepUDP:             (*Pump).stepUDP,
	StepICMP:            (*Pump).stepICMP,
	StepICMPv6:          (*Pump).stepICMPv6,
	StepTxUDP:           (*Pump).stepTxUDP,
	StepTxIPv4:          (*Pump).stepTxIPv4,
	StepTxIPv6:          (*Pump).stepTxIPv6,
	StepTxPPP:           (*Pump).stepTxPPP,
	StepTxAHDLCCRC:      (*Pump).stepTxAHDLCCRC,
	StepTxAHDLCEncodeCC: (*Pump).stepTxAHDLCEncodeCC,
	StepTxDriver:        (*Pump).stepTxDriver,
	StepBufDiscard:      (*Pump).stepBufDiscard,
}

// --- Rx entry / AHDLC -------------------------------------------------

// stepRxEntry picks the first real step from the receiving interface's
// pre-stripped/pre-verified driver hints (spec.md §4.9).
func (p *Pump) stepRxEntry(item WorkItem) {
	pkt := item.Pkt
	in, err := p.Table.InterfaceAt(pkt.Meta().Intfc)
	if err != nil {
		p.discard(pkt, pktbuf.CodeIntfcNotConfigured)
		return
	}
	switch {
	case in.Static.PreTranslated && in.Static.PreCRCVerified:
		p.Send(WorkItem{Step: StepPPP, Pkt: pkt})
	case in.Static.PreTranslated:
		p.Send(WorkItem{Step: StepAHDLCVerifyCRC, Pkt: pkt})
	default:
		p.Send(WorkItem{Step: StepAHDLCStripCC, Pkt: pkt})
	}
}

func (p *Pump) stepAHDLCStripCC(item WorkItem) {
	pkt := item.Pkt
	if err := ahdlc.StripDelimiters(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeAHDLCRxCC)
		return
	}
	if err := ahdlc.StripControlChars(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeAHDLCRxCC)
		return
	}
	p.Send(WorkItem{Step: StepAHDLCVerifyCRC, Pkt: pkt})
}

func (p *Pump) stepAHDLCVerifyCRC(item WorkItem) {
	pkt := item.Pkt
	if err := ahdlc.VerifyCRC(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeAHDLCRxBadCRC)
		return
	}
	p.Send(WorkItem{Step: StepPPP, Pkt: pkt})
}

// --- PPP framing / XCP -------------------------------------------------

func (p *Pump) stepPPP(item WorkItem) {
	pkt := item.Pkt
	tag, err := ppp.StripRx(pkt)
	if err != nil {
		code := pktbuf.CodePPPHeaderCorrupted
		if err == ppp.ErrOtherProtocolUnsupported {
			code = pktbuf.CodePPPOtherProtocolUnsupported
		}
		p.discard(pkt, code)
		return
	}
	in, err := p.Table.InterfaceAt(pkt.Meta().Intfc)
	if err != nil {
		p.discard(pkt, pktbuf.CodeIntfcNotConfigured)
		return
	}

	switch tag {
	case pktbuf.ProtoLCP:
		p.Send(WorkItem{Step: StepLCP, Pkt: pkt})
	case pktbuf.ProtoIPCP:
		p.Send(WorkItem{Step: StepIPCP, Pkt: pkt})
	case pktbuf.ProtoIPV6CP:
		p.Send(WorkItem{Step: StepIPV6CP, Pkt: pkt})
	case pktbuf.ProtoIPv4:
		if !in.Static.IPCPEnabled {
			p.discard(pkt, pktbuf.CodePPPIPProtocolUnsupported)
			return
		}
		p.Send(WorkItem{Step: StepIPv4, Pkt: pkt})
	case pktbuf.ProtoIPv6:
		if !in.Static.IPV6CPEnabled {
			p.discard(pkt, pktbuf.CodePPPIPProtocolUnsupported)
			return
		}
		p.Send(WorkItem{Step: StepIPv6, Pkt: pkt})
	default:
		p.discard(pkt, pktbuf.CodePPPOtherProtocolUnsupported)
	}
}

// xcpEvent maps a parsed XCP code, under the control protocol named by
// tag, to the matching FSM event (spec.md §4.4's transition table).
func xcpEvent(tag pktbuf.ProtocolTag, code ppp.XCPCode) (ppp.Event, bool) {
	switch code {
	case ppp.TermReq:
		return ppp.EvRxTerminateReq, true
	case ppp.TermAck:
		return ppp.EvRxTerminateAck, true
	}
	switch tag {
	case pktbuf.ProtoLCP:
		switch code {
		case ppp.ConfReq:
			return ppp.EvRxLCPConfReq, true
		case ppp.ConfAck:
			return ppp.EvRxLCPConfAck, true
		}
	case pktbuf.ProtoIPCP:
		switch code {
		case ppp.ConfReq:
			return ppp.EvRxIPCPConfReq, true
		case ppp.ConfAck:
			return ppp.EvRxIPCPConfAck, true
		}
	case pktbuf.ProtoIPV6CP:
		switch code {
		case ppp.ConfReq:
			return ppp.EvRxIPV6CPConfReq, true
		case ppp.ConfAck:
			return ppp.EvRxIPV6CPConfAck, true
		}
	}
	return 0, false
}

// stepXCP handles LCP, IPCP and IPV6CP alike: the wire format and the
// Id/ack-class rules are identical across all three (spec.md §4.3), and
// previous_ph (stamped by stepPPP) says which one this packet is.
func (p *Pump) stepXCP(item WorkItem) {
	pkt := item.Pkt
	m := pkt.Meta()

	hdr, _, err := ppp.ParseXCP(pkt)
	if err != nil {
		p.discard(pkt, pktbuf.CodePPPXCPParseError)
		return
	}
	in, err := p.Table.InterfaceAt(m.Intfc)
	if err != nil {
		p.discard(pkt, pktbuf.CodeIntfcNotConfigured)
		return
	}
	link := in.Link

	if ppp.IsAckClass(hdr.Code) {
		if hdr.ID != link.TxID {
			p.free(pkt)
			return
		}
	} else {
		link.RxID = hdr.ID
	}

	// LCP echo request/reply is a keepalive outside the four-state
	// machine: turned around in place (spec.md §4.4).
	if hdr.Code == ppp.EchoReq && m.PreviousPH == pktbuf.ProtoLCP {
		if err := ppp.RewriteCode(pkt, ppp.EchoRep); err != nil {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
		p.Send(WorkItem{Step: StepTxPPP, Pkt: pkt})
		return
	}

	ev, ok := xcpEvent(m.PreviousPH, hdr.Code)
	if !ok {
		// CONF_NAK/CONF_REJ and other codes the FSM doesn't act on
		// (spec.md §9 open question: "current spec drops them").
		p.discard(pkt, pktbuf.CodePPPXCPCodeUnsupported)
		return
	}

	directive := link.Event(ev)
	p.runDirective(m.Intfc, directive)

	if directive.SendAck {
		ackCode, ok := ppp.AckCodeFor(hdr.Code)
		if !ok {
			p.free(pkt)
			return
		}
		if err := ppp.RewriteCode(pkt, ackCode); err != nil {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
		p.Send(WorkItem{Step: StepTxPPP, Pkt: pkt})
		return
	}
	p.free(pkt)
}

// runDirective carries out the FSM's side effects: sending an
// interface-initiated CONF_REQ/TERM_REQ and notifying event subscribers.
func (p *Pump) runDirective(intfc uint8, d ppp.Directive) {
	in, err := p.Table.InterfaceAt(intfc)
	if err != nil {
		return
	}
	metrics.SetPPPState(intfc, int(in.Link.State))

	for _, a := range d.Actions {
		switch a {
		case ppp.ActionSendLCPConfReq:
			p.sendXCP(intfc, pktbuf.ProtoLCP, ppp.ConfReq, ppp.MagicNumberOption())
		case ppp.ActionSendIPCPConfReq:
			p.sendXCP(intfc, pktbuf.ProtoIPCP, ppp.ConfReq, nil)
		case ppp.ActionSendIPV6CPConfReq:
			p.sendXCP(intfc, pktbuf.ProtoIPV6CP, ppp.ConfReq, nil)
		case ppp.ActionSendLCPTermReq:
			p.sendXCP(intfc, pktbuf.ProtoLCP, ppp.TermReq, nil)
		case ppp.ActionNotifyIntfcUp:
			p.Events.Emit(events.Event{Kind: events.IntfcUp, Intfc: intfc})
		case ppp.ActionNotifyIntfcDown:
			p.Events.Emit(events.Event{Kind: events.IntfcDown, Intfc: intfc})
		case ppp.ActionEmitPPPUp, ppp.ActionEmitPPPDown:
			// Folded into the intfc up/down notifications above;
			// spec.md §4.10 only names three subscriber lists.
		}
	}
}

// sendXCP builds and enqueues an interface-initiated CONF_REQ/TERM_REQ.
// Allocation is non-blocking (spec.md §5: Tx entries needing a fresh
// packet use the timed variant with ticks=0 and drop on exhaustion).
func (p *Pump) sendXCP(intfc uint8, tag pktbuf.ProtocolTag, code ppp.XCPCode, optionsWire []byte) {
	in, err := p.Table.InterfaceAt(intfc)
	if err != nil {
		return
	}
	pkt, ok := p.TxPool.AllocTimed(context.Background(), 0)
	if !ok {
		return
	}
	m := pkt.Meta()
	m.Offset = controlFrameHeadroom
	m.Length = 0
	m.Intfc = intfc
	m.PreviousPH = tag

	id := in.Link.NextTxID()
	if err := ppp.BuildXCPTx(pkt, code, id, optionsWire); err != nil {
		pkt.Release()
		return
	}
	p.Send(WorkItem{Step: StepTxPPP, Pkt: pkt})
}

// dispatchPPPTimeout services one PPP timer expiry (spec.md §5: "Timer
// expiries post timeout events"), derived from the link's current state
// since RearmableTimer's callback carries no event of its own.
func (p *Pump) dispatchPPPTimeout(intfc uint8) {
	in, err := p.Table.InterfaceAt(intfc)
	if err != nil {
		return
	}
	ev, ok := in.Link.TimeoutEvent()
	if !ok {
		return
	}
	d := in.Link.Event(ev)
	p.runDirective(intfc, d)
}

// --- IPv4 / IPv6 --------------------------------------------------------

func (p *Pump) stepIPv4(item WorkItem) {
	pkt := item.Pkt
	h, err := ipstack.DecodeIPv4Rx(pkt)
	if err != nil {
		switch err {
		case ipstack.ErrIPv4TooSmall:
			p.discard(pkt, pktbuf.CodeIPPacketTooSmall)
		default:
			p.discard(pkt, pktbuf.CodeIPPacketHeaderCorrupted)
		}
		return
	}
	pkt.Meta().SetAddrsV4(h.Src, h.Dst)
	p.routeIP(pkt, h.Protocol, h.Src[:], h.Dst[:], false)
}

func (p *Pump) stepIPv6(item WorkItem) {
	pkt := item.Pkt
	h, err := ipstack.DecodeIPv6Rx(pkt)
	if err != nil {
		switch err {
		case ipstack.ErrIPv6TooSmall:
			p.discard(pkt, pktbuf.CodeIPPacketTooSmall)
		default:
			p.discard(pkt, pktbuf.CodeIPPacketHeaderCorrupted)
		}
		return
	}
	pkt.Meta().SetAddrsV6(h.Src, h.Dst)
	p.routeIP(pkt, h.NextHeader, h.Src[:], h.Dst[:], true)
}

// routeIP resolves the destination sub-interface (learning it if the
// sub-interface's acquisition method allows) and dispatches by protocol
// number, per spec.md §4.5.
func (p *Pump) routeIP(pkt pktbuf.Packet, proto uint8, src, dst []byte, isV6 bool) {
	m := pkt.Meta()
	subi, ok := p.Table.SubiLookup(m.Intfc, dst, isV6)
	if !ok {
		subi, ok = p.Table.SubiAttemptAndLearn(m.Intfc, src, isV6)
		if !ok {
			p.discard(pkt, pktbuf.CodeIPSubiNotFound)
			return
		}
	}
	m.Subi = subi

	switch proto {
	case ipstack.ProtoUDP:
		p.Send(WorkItem{Step: StepUDP, Pkt: pkt})
	case ipstack.ProtoICMP:
		if isV6 {
			p.discard(pkt, pktbuf.CodeIPUnsupportedL4)
			return
		}
		p.Send(WorkItem{Step: StepICMP, Pkt: pkt})
	case ipstack.ProtoICMPv6:
		if !isV6 {
			p.discard(pkt, pktbuf.CodeIPUnsupportedL4)
			return
		}
		p.Send(WorkItem{Step: StepICMPv6, Pkt: pkt})
	default:
		p.discard(pkt, pktbuf.CodeIPUnsupportedL4)
	}
}

// --- UDP / ICMP / ICMPv6 -------------------------------------------------

func (p *Pump) stepUDP(item WorkItem) {
	pkt := item.Pkt
	m := pkt.Meta()
	isV6 := m.AddrIsV6
	src, dst := m.SrcAddr, m.DstAddr

	var srcSlice, dstSlice []byte
	if isV6 {
		srcSlice, dstSlice = src[:], dst[:]
	} else {
		srcSlice, dstSlice = src[:4], dst[:4]
	}

	hdr, err := udpdemux.DecodeRx(pkt, srcSlice, dstSlice, isV6)
	if err != nil {
		switch err {
		case udpdemux.ErrTooSmall:
			p.discard(pkt, pktbuf.CodeUDPPacketTooSmall)
		default:
			p.discard(pkt, pktbuf.CodeIPRxBadCRC)
		}
		return
	}

	peerAddr := srcSlice
	idx, ok := p.Table.CircuitLookup(m.Subi, ipstack.ProtoUDP, hdr.DstPort, hdr.SrcPort, peerAddr)
	if !ok {
		p.discard(pkt, pktbuf.CodeUDPCircuitNotFound)
		return
	}
	circuit, err := p.Table.CircuitAt(idx)
	if err != nil {
		p.discard(pkt, pktbuf.CodeUDPCircuitNotFound)
		return
	}

	m.Circuit = idx
	m.PreviousPH = pktbuf.ProtoUDP

	if circuit.Deliver == nil || circuit.ListenerMsgFields == iftable.ListenerDisabled {
		pkt.Release()
		return
	}
	circuit.Deliver(pkt)
}

func (p *Pump) stepICMP(item WorkItem) {
	pkt := item.Pkt
	if err := icmpecho.Turnaround(pkt, false); err != nil {
		pkt.Release()
		return
	}
	p.Send(WorkItem{Step: StepTxIPv4, Pkt: pkt})
}

func (p *Pump) stepICMPv6(item WorkItem) {
	pkt := item.Pkt
	if err := icmpecho.Turnaround(pkt, true); err != nil {
		pkt.Release()
		return
	}
	p.Send(WorkItem{Step: StepTxIPv6, Pkt: pkt})
}

// --- Tx path -------------------------------------------------------------

// txAddrs resolves the Tx src/dest for a packet: circuit==SwapSrcDest
// (ICMP echo reply, UDP server-mode reply) swaps the addresses recorded
// off the Rx headers; otherwise the caller already set them on Meta.
func txAddrs(pkt pktbuf.Packet) (src, dst [16]byte) {
	m := pkt.Meta()
	if m.Circuit == pktbuf.SwapSrcDest {
		return m.SwappedAddrs()
	}
	return m.SrcAddr, m.DstAddr
}

// stepTxUDP builds the UDP header for a reply the caller has stamped
// with the circuit to send on (spec.md §4.6: "Tx: circuit index comes
// from caller"). In server mode (circuit.PeerPort == 0) the reply reuses
// the listener's packet in place, so the stripped Rx UDP header's source
// port is still readable 8 bytes behind the current offset — exactly the
// "incoming header still present at offset" spec.md §4.6 and its §9 open
// question describe.
func (p *Pump) stepTxUDP(item WorkItem) {
	pkt := item.Pkt
	m := pkt.Meta()
	idx := m.Circuit
	tblCircuit, err := p.Table.CircuitAt(idx)
	if err != nil {
		p.discard(pkt, pktbuf.CodeIPCircuitNotFound)
		return
	}

	isV6 := m.AddrIsV6
	src, dst := txAddrs(pkt)
	var srcSlice, dstSlice []byte
	if isV6 {
		srcSlice, dstSlice = src[:], dst[:]
	} else {
		srcSlice, dstSlice = src[:4], dst[:4]
	}

	var replySrcPort uint16
	if tblCircuit.PeerPort == 0 {
		if m.Offset < 8 {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
		var portBytes [2]byte
		if err := pkt.ReadAt(m.Offset-8, portBytes[:]); err != nil {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
		replySrcPort = uint16(portBytes[0])<<8 | uint16(portBytes[1])
	}

	dstCircuit := udpdemux.Circuit{Index: idx, SelfPort: tblCircuit.SelfPort, PeerPort: tblCircuit.PeerPort}
	_, swap, err := udpdemux.EncodeTx(pkt, dstCircuit, replySrcPort, srcSlice, dstSlice, isV6)
	if err != nil {
		p.discard(pkt, pktbuf.CodeMTUExceeded)
		return
	}
	if swap {
		m.Circuit = pktbuf.SwapSrcDest
	}
	m.PreviousPH = pktbuf.ProtoUDP
	if isV6 {
		p.Send(WorkItem{Step: StepTxIPv6, Pkt: pkt})
	} else {
		p.Send(WorkItem{Step: StepTxIPv4, Pkt: pkt})
	}
}

func (p *Pump) stepTxIPv4(item WorkItem) {
	pkt := item.Pkt
	m := pkt.Meta()
	src, dst := txAddrs(pkt)
	var s, d [4]byte
	copy(s[:], src[:4])
	copy(d[:], dst[:4])

	proto, ok := l4ProtoFor(m.PreviousPH)
	if !ok {
		p.discard(pkt, pktbuf.CodeIPUnsupportedL4)
		return
	}
	if m.PreviousPH == pktbuf.ProtoICMP {
		if err := icmpecho.FinalizeChecksum(pkt, s[:], d[:], false); err != nil {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
	}
	if err := ipstack.EncodeIPv4Tx(pkt, proto, defaultTTL, s, d); err != nil {
		p.discard(pkt, pktbuf.CodeMTUExceeded)
		return
	}
	m.PreviousPH = pktbuf.ProtoIPv4
	p.Send(WorkItem{Step: StepTxPPP, Pkt: pkt})
}

func (p *Pump) stepTxIPv6(item WorkItem) {
	pkt := item.Pkt
	m := pkt.Meta()
	src, dst := txAddrs(pkt)

	proto, ok := l4ProtoFor(m.PreviousPH)
	if !ok {
		p.discard(pkt, pktbuf.CodeIPUnsupportedL4)
		return
	}
	if m.PreviousPH == pktbuf.ProtoICMPv6 {
		if err := icmpecho.FinalizeChecksum(pkt, src[:], dst[:], true); err != nil {
			p.discard(pkt, pktbuf.CodeMetadataCorrupted)
			return
		}
	}
	if err := ipstack.EncodeIPv6Tx(pkt, proto, defaultTTL, src, dst); err != nil {
		p.discard(pkt, pktbuf.CodeMTUExceeded)
		return
	}
	m.PreviousPH = pktbuf.ProtoIPv6
	p.Send(WorkItem{Step: StepTxPPP, Pkt: pkt})
}

func l4ProtoFor(tag pktbuf.ProtocolTag) (uint8, bool) {
	switch tag {
	case pktbuf.ProtoUDP:
		return ipstack.ProtoUDP, true
	case pktbuf.ProtoICMP:
		return ipstack.ProtoICMP, true
	case pktbuf.ProtoICMPv6:
		return ipstack.ProtoICMPv6, true
	default:
		return 0, false
	}
}

func (p *Pump) stepTxPPP(item WorkItem) {
	pkt := item.Pkt
	if err := ppp.BuildTx(pkt); err != nil {
		p.discard(pkt, pktbuf.CodePPPHeaderCorrupted)
		return
	}
	p.Send(WorkItem{Step: StepTxAHDLCCRC, Pkt: pkt})
}

func (p *Pump) stepTxAHDLCCRC(item WorkItem) {
	pkt := item.Pkt
	if err := ahdlc.AppendCRC(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeMTUExceeded)
		return
	}
	p.Send(WorkItem{Step: StepTxAHDLCEncodeCC, Pkt: pkt})
}

func (p *Pump) stepTxAHDLCEncodeCC(item WorkItem) {
	pkt := item.Pkt
	if err := ahdlc.EncodeControlChars(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeAHDLCTxCC)
		return
	}
	if err := ahdlc.AppendDelimiters(pkt); err != nil {
		p.discard(pkt, pktbuf.CodeMTUExceeded)
		return
	}
	p.Send(WorkItem{Step: StepTxDriver, Pkt: pkt})
}

func (p *Pump) stepTxDriver(item WorkItem) {
	pkt := item.Pkt
	in, err := p.Table.InterfaceAt(pkt.Meta().Intfc)
	if err != nil || in.Static.TxDriver == nil {
		pkt.Release()
		return
	}
	in.Static.TxDriver(pkt)
}

func (p *Pump) stepBufDiscard(item WorkItem) {
	pkt := item.Pkt
	code := pkt.Meta().Code
	metrics.ObserveDiscard(code)
	pkt.Release()
}
