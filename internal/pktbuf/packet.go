// Package pktbuf implements the packet object described in the core spec:
// a tagged variant over two storage shapes (contiguous buffer and particle
// chain) sharing one metadata header, plus their fixed-size pools.
package pktbuf

import (
	"errors"
	"fmt"
)

// ProtocolTag names the layer most recently stripped (Rx) or added (Tx).
// The zero value means "unset".
type ProtocolTag uint8

const (
	ProtoNone ProtocolTag = iota
	ProtoAHDLC
	ProtoPPP
	ProtoLCP
	ProtoIPCP
	ProtoIPV6CP
	ProtoIPv4
	ProtoIPv6
	ProtoUDP
	ProtoTCP
	ProtoICMP
	ProtoICMPv6
)

func (t ProtocolTag) String() string {
	switch t {
	case ProtoNone:
		return "none"
	case ProtoAHDLC:
		return "ahdlc"
	case ProtoPPP:
		return "ppp"
	case ProtoLCP:
		return "lcp"
	case ProtoIPCP:
		return "ipcp"
	case ProtoIPV6CP:
		return "ipv6cp"
	case ProtoIPv4:
		return "ipv4"
	case ProtoIPv6:
		return "ipv6"
	case ProtoUDP:
		return "udp"
	case ProtoTCP:
		return "tcp"
	case ProtoICMP:
		return "icmp"
	case ProtoICMPv6:
		return "icmpv6"
	default:
		return fmt.Sprintf("proto(%d)", uint8(t))
	}
}

// DiscardCode is the reason a packet was dropped, per the error handling
// design: attached to the packet and consumed only by the discard step.
type DiscardCode uint32

const (
	CodeNone DiscardCode = iota
	CodeIntfcNotConfigured
	CodeMTUExceeded
	CodeMetadataCorrupted
	CodeUnderrun
	CodeNoMorePcls
	CodePclOpFailed
	CodeAHDLCRxCC
	CodeAHDLCRxBadCRC
	CodeAHDLCTxCC
	CodePPPHeaderCorrupted
	CodePPPIPProtocolUnsupported
	CodePPPOtherProtocolUnsupported
	CodePPPXCPCodeUnsupported
	CodePPPXCPParseError
	CodeIPPacketTooSmall
	CodeIPPacketHeaderCorrupted
	CodeIPIntfcNotFound
	CodeIPSubiNotFound
	CodeIPCircuitNotFound
	CodeIPRxBadCRC
	CodeIPUnsupportedL4
	CodeUDPPacketTooSmall
	CodeUDPCircuitNotFound
)

var codeNames = map[DiscardCode]string{
	CodeNone:                        "none",
	CodeIntfcNotConfigured:          "intfc_not_configured",
	CodeMTUExceeded:                 "mtu_exceeded",
	CodeMetadataCorrupted:           "metadata_corrupted",
	CodeUnderrun:                    "underrun",
	CodeNoMorePcls:                  "no_more_pcls",
	CodePclOpFailed:                 "pcl_op_failed",
	CodeAHDLCRxCC:                   "ahdlc_rx_cc",
	CodeAHDLCRxBadCRC:               "ahdlc_rx_bad_crc",
	CodeAHDLCTxCC:                   "ahdlc_tx_cc",
	CodePPPHeaderCorrupted:          "ppp_header_corrupted",
	CodePPPIPProtocolUnsupported:    "ppp_ip_protocol_unsupported",
	CodePPPOtherProtocolUnsupported: "ppp_other_protocol_unsupported",
	CodePPPXCPCodeUnsupported:       "ppp_xcp_code_unsupported",
	CodePPPXCPParseError:            "ppp_xcp_parse_error",
	CodeIPPacketTooSmall:            "ip_packet_too_small",
	CodeIPPacketHeaderCorrupted:     "ip_packet_header_corrupted",
	CodeIPIntfcNotFound:             "ip_intfc_not_found",
	CodeIPSubiNotFound:              "ip_subi_not_found",
	CodeIPCircuitNotFound:           "ip_circuit_not_found",
	CodeIPRxBadCRC:                  "ip_rx_bad_crc",
	CodeIPUnsupportedL4:             "ip_unsupported_l4",
	CodeUDPPacketTooSmall:           "udp_packet_too_small",
	CodeUDPCircuitNotFound:          "udp_circuit_not_found",
}

func (c DiscardCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// SwapSrcDest is the circuit index sentinel instructing the IP Tx step to
// swap source/destination addresses read from the incoming headers.
const SwapSrcDest uint8 = 255

var (
	ErrMetadataCorrupted = errors.New("pktbuf: offset/length out of bounds")
	ErrUnderrun           = errors.New("pktbuf: insufficient headroom to prepend")
	ErrMTUExceeded        = errors.New("pktbuf: append exceeds storage capacity")
	ErrPclOpFailed        = errors.New("pktbuf: particle chain operation failed")
)

// Meta is the header shared by both storage shapes.
type Meta struct {
	Offset     uint16
	Length     uint16
	Intfc      uint8
	Subi       uint8
	Circuit    uint8
	PreviousPH ProtocolTag
	Code       DiscardCode

	// SrcAddr/DstAddr/AddrIsV6 carry the IP addresses read from the most
	// recently stripped IPv4/IPv6 header, so the Tx step can rebuild a
	// pseudo-header for the L4 checksum and so SwapSrcDest replies can
	// read "the addresses from the incoming headers" without a side
	// table (spec.md §6 glossary entry for SWAP_SRC_DEST).
	SrcAddr  [16]byte
	DstAddr  [16]byte
	AddrIsV6 bool
}

// Packet is the sum-type interface spec.md §9 recommends in place of a
// runtime tag interrogated by every step: one code path per layer handler,
// implemented once against this interface, serves both storage shapes.
type Packet interface {
	Meta() *Meta
	Capacity() uint16

	// HeaderWindow returns a contiguous, in-place-writable view of n bytes
	// starting at the current offset. Protocol headers always lie within
	// the head cell/buffer (an invariant callers must respect), so this
	// never needs to cross a chain cell boundary.
	HeaderWindow(n uint16) ([]byte, error)

	// AdvanceOffset moves the window start forward by n, shrinking Length
	// by the same amount (Rx: strip n bytes of a consumed header).
	AdvanceOffset(n uint16) error
	// Shrink reduces Length by n without moving Offset (Rx: drop a trailer).
	Shrink(n uint16) error
	// Prepend moves Offset back by n and grows Length by n (Tx: add a header).
	Prepend(n uint16) error
	// Append grows Length by n without moving Offset (Tx: add a trailer).
	Append(n uint16) error

	// ReadAt/WriteAt address the packet's storage in absolute coordinates
	// (0 == start of storage, not start of window), walking cell
	// boundaries transparently for a particle chain.
	ReadAt(off uint16, buf []byte) error
	WriteAt(off uint16, buf []byte) error

	// Release returns the packet to the pool it was allocated from.
	Release()
}

// SetAddrsV4 records a source/dest IPv4 pair on the packet.
func (m *Meta) SetAddrsV4(src, dst [4]byte) {
	m.AddrIsV6 = false
	copy(m.SrcAddr[:4], src[:])
	copy(m.DstAddr[:4], dst[:])
}

// SetAddrsV6 records a source/dest IPv6 pair on the packet.
func (m *Meta) SetAddrsV6(src, dst [16]byte) {
	m.AddrIsV6 = true
	m.SrcAddr = src
	m.DstAddr = dst
}

// AddrsV4 returns the recorded source/dest as IPv4 addresses.
func (m *Meta) AddrsV4() (src, dst [4]byte) {
	copy(src[:], m.SrcAddr[:4])
	copy(dst[:], m.DstAddr[:4])
	return src, dst
}

// AddrsV6 returns the recorded source/dest as IPv6 addresses.
func (m *Meta) AddrsV6() (src, dst [16]byte) {
	return m.SrcAddr, m.DstAddr
}

// SwappedAddrs returns the recorded addresses with source and
// destination exchanged, for the SwapSrcDest circuit sentinel.
func (m *Meta) SwappedAddrs() (src, dst [16]byte) {
	return m.DstAddr, m.SrcAddr
}

// checkBounds is the invariant from spec.md §8: offset+length <= capacity.
func checkBounds(m *Meta, capacity uint16) error {
	if uint32(m.Offset)+uint32(m.Length) > uint32(capacity) {
		return ErrMetadataCorrupted
	}
	return nil
}
