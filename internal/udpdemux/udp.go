// Package udpdemux implements the UDP Rx/Tx header codec and circuit
// demux described in spec.md §4.6.
package udpdemux

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/rnetd/internal/ipstack"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

const headerLen = 8

var (
	ErrTooSmall    = errors.New("udpdemux: packet shorter than a udp header")
	ErrBadChecksum = errors.New("udpdemux: checksum mismatch")
)

// Header is the parsed UDP header.
type Header struct {
	SrcPort uint16
	DstPort uint16
}

// Circuit is the subset of circuit-table state the demux needs to finish
// delivering or turning around a UDP datagram.
type Circuit struct {
	Index    uint8
	SelfPort uint16
	PeerPort uint16

	// Deliver, when non-nil, hands the stripped datagram to a registered
	// listener (spec.md §4.6: "hand ownership to listener ... else
	// free"). The caller releases pkt when Deliver is nil.
	Deliver func(pktbuf.Packet)
}

// CircuitTable is the seam into the interface/circuit tables (iftable),
// mirroring the teacher's Netlinker-style lookup-by-interface pattern.
type CircuitTable interface {
	// LookupUDP finds a circuit bound to subi honoring the wildcard rules
	// of spec.md §4.6: self_port/peer_port each match exactly or a stored
	// 0, and a stored peer address of all-zero matches any peer.
	LookupUDP(subi uint8, selfPort, peerPort uint16, peerAddr []byte) (Circuit, bool)
}

// DecodeRx validates and strips an 8-byte UDP header from pkt's current
// window (already positioned at the UDP datagram by the IP layer). A
// received checksum of zero means "not computed" and is accepted without
// verification, matching classic UDP/IPv4 behavior.
func DecodeRx(pkt pktbuf.Packet, srcIP, dstIP []byte, isIPv6 bool) (Header, error) {
	m := pkt.Meta()
	if m.Length < headerLen {
		return Header{}, ErrTooSmall
	}
	hdr, err := pkt.HeaderWindow(headerLen)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		SrcPort: binary.BigEndian.Uint16(hdr[0:2]),
		DstPort: binary.BigEndian.Uint16(hdr[2:4]),
	}
	checksum := binary.BigEndian.Uint16(hdr[6:8])
	if checksum != 0 {
		datagram := make([]byte, m.Length)
		if err := pkt.ReadAt(m.Offset, datagram); err != nil {
			return Header{}, err
		}
		if !verifyChecksum(datagram, srcIP, dstIP, isIPv6) {
			return Header{}, ErrBadChecksum
		}
	}

	if err := pkt.AdvanceOffset(headerLen); err != nil {
		return Header{}, err
	}
	return h, nil
}

func verifyChecksum(datagram, srcIP, dstIP []byte, isIPv6 bool) bool {
	if isIPv6 {
		var s, d [16]byte
		copy(s[:], srcIP)
		copy(d[:], dstIP)
		return ipstack.VerifyL4ChecksumIPv6(s, d, ipstack.ProtoUDP, datagram)
	}
	var s, d [4]byte
	copy(s[:], srcIP)
	copy(d[:], dstIP)
	return ipstack.VerifyL4ChecksumIPv4(s, d, ipstack.ProtoUDP, datagram, true)
}

// EncodeTx prepends the 8-byte UDP header and fills in its checksum.
// dst is circuit.PeerPort unless the circuit is in server mode
// (PeerPort == 0), in which case replySrcPort (the incoming request's
// source port) is used instead and swap reports that the IP Tx step must
// swap src/dest via SwapSrcDest (spec.md §4.6).
func EncodeTx(pkt pktbuf.Packet, circuit Circuit, replySrcPort uint16, srcIP, dstIP []byte, isIPv6 bool) (dstPort uint16, swap bool, err error) {
	payloadLen := pkt.Meta().Length
	if err = pkt.Prepend(headerLen); err != nil {
		return 0, false, err
	}

	if circuit.PeerPort == 0 {
		dstPort, swap = replySrcPort, true
	} else {
		dstPort = circuit.PeerPort
	}

	hdr, err := pkt.HeaderWindow(headerLen)
	if err != nil {
		return 0, false, err
	}
	binary.BigEndian.PutUint16(hdr[0:2], circuit.SelfPort)
	binary.BigEndian.PutUint16(hdr[2:4], dstPort)
	binary.BigEndian.PutUint16(hdr[4:6], headerLen+payloadLen)
	hdr[6], hdr[7] = 0, 0

	datagram := make([]byte, headerLen+payloadLen)
	if err = pkt.ReadAt(pkt.Meta().Offset, datagram); err != nil {
		return 0, false, err
	}
	var cksum uint16
	if isIPv6 {
		var s, d [16]byte
		copy(s[:], srcIP)
		copy(d[:], dstIP)
		cksum = ipstack.L4ChecksumIPv6(s, d, ipstack.ProtoUDP, datagram)
	} else {
		var s, d [4]byte
		copy(s[:], srcIP)
		copy(d[:], dstIP)
		cksum = ipstack.L4ChecksumIPv4(s, d, ipstack.ProtoUDP, datagram, true)
	}
	binary.BigEndian.PutUint16(hdr[6:8], cksum)
	return dstPort, swap, nil
}
