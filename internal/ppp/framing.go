// Package ppp implements PPP framing (ACFC + protocol field, XCP structural
// validation) and the per-interface link-control state machine.
package ppp

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

// Protocol is a PPP Protocol field value (RFC 1661 §2).
type Protocol uint16

const (
	ProtoLCP    Protocol = 0xc021
	ProtoIPCP   Protocol = 0x8021
	ProtoIPV6CP Protocol = 0x8057
	ProtoIPv4   Protocol = 0x0021
	ProtoIPv6   Protocol = 0x0057
)

// PrefixLength is the ACFC(2) + Protocol(2) byte count a Tx caller must
// reserve headroom for before this layer runs.
const PrefixLength = 4

var acfc = [2]byte{0xff, 0x03}

var (
	ErrHeaderCorrupted          = errors.New("ppp: acfc or protocol field corrupted")
	ErrOtherProtocolUnsupported = errors.New("ppp: unsupported ppp protocol")
	ErrIPProtocolUnsupported    = errors.New("ppp: ip protocol received without matching option flag")
)

var protoToTag = map[Protocol]pktbuf.ProtocolTag{
	ProtoLCP:    pktbuf.ProtoLCP,
	ProtoIPCP:   pktbuf.ProtoIPCP,
	ProtoIPV6CP: pktbuf.ProtoIPV6CP,
	ProtoIPv4:   pktbuf.ProtoIPv4,
	ProtoIPv6:   pktbuf.ProtoIPv6,
}

var tagToProto = map[pktbuf.ProtocolTag]Protocol{
	pktbuf.ProtoLCP:    ProtoLCP,
	pktbuf.ProtoIPCP:   ProtoIPCP,
	pktbuf.ProtoIPV6CP: ProtoIPV6CP,
	pktbuf.ProtoIPv4:   ProtoIPv4,
	pktbuf.ProtoIPv6:   ProtoIPv6,
}

// StripRx validates ACFC, reads the Protocol field, sets PreviousPH, and
// advances past both (4 bytes). It returns the recognized protocol's tag.
func StripRx(pkt pktbuf.Packet) (pktbuf.ProtocolTag, error) {
	m := pkt.Meta()
	if m.Length < 4 {
		return pktbuf.ProtoNone, ErrHeaderCorrupted
	}
	win, err := pkt.HeaderWindow(4)
	if err != nil {
		return pktbuf.ProtoNone, err
	}
	if win[0] != acfc[0] || win[1] != acfc[1] {
		return pktbuf.ProtoNone, ErrHeaderCorrupted
	}
	proto := Protocol(binary.BigEndian.Uint16(win[2:4]))
	tag, ok := protoToTag[proto]
	if !ok {
		return pktbuf.ProtoNone, ErrOtherProtocolUnsupported
	}
	if err := pkt.AdvanceOffset(4); err != nil {
		return pktbuf.ProtoNone, err
	}
	m.PreviousPH = tag
	return tag, nil
}

// BuildTx prepends ACFC + the Protocol field derived from PreviousPH. The
// caller must have left at least PrefixLength bytes of headroom.
func BuildTx(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	if m.Offset < PrefixLength {
		return pktbuf.ErrUnderrun
	}
	proto, ok := tagToProto[m.PreviousPH]
	if !ok {
		return ErrOtherProtocolUnsupported
	}
	if err := pkt.Prepend(4); err != nil {
		return err
	}
	m = pkt.Meta()
	hdr := make([]byte, 4)
	hdr[0], hdr[1] = acfc[0], acfc[1]
	binary.BigEndian.PutUint16(hdr[2:4], uint16(proto))
	return pkt.WriteAt(m.Offset, hdr)
}

// XCPCode is the one-byte Code field common to LCP/IPCP/IPV6CP.
type XCPCode uint8

const (
	ConfReq  XCPCode = 1
	ConfAck  XCPCode = 2
	ConfNak  XCPCode = 3
	ConfRej  XCPCode = 4
	TermReq  XCPCode = 5
	TermAck  XCPCode = 6
	CodeRej  XCPCode = 7
	EchoReq  XCPCode = 9
	EchoRep  XCPCode = 10
	DiscReq  XCPCode = 11
)

var (
	ErrXCPCodeUnsupported = errors.New("ppp: unsupported xcp code")
	ErrXCPParseError      = errors.New("ppp: xcp option list malformed")
)

// XCPHeader is the Code/Id/Length triple common to LCP/IPCP/IPV6CP.
type XCPHeader struct {
	Code XCPCode
	ID   uint8
	Len  uint16 // includes these 4 header bytes
}

// XCPOption is one parsed Type/Length/Value option from a CONF_REQ.
type XCPOption struct {
	Type  uint8
	Value []byte
}

// ParseXCP validates the structural rules from spec.md §4.3: Length >= 4,
// Length <= remaining bytes in the window, and for CONF_REQ, that options
// sum exactly to Length-4 with each option's Len >= 2.
func ParseXCP(pkt pktbuf.Packet) (XCPHeader, []XCPOption, error) {
	m := pkt.Meta()
	if m.Length < 4 {
		return XCPHeader{}, nil, ErrXCPParseError
	}
	win, err := pkt.HeaderWindow(m.Length)
	if err != nil {
		return XCPHeader{}, nil, err
	}
	hdr := XCPHeader{
		Code: XCPCode(win[0]),
		ID:   win[1],
		Len:  binary.BigEndian.Uint16(win[2:4]),
	}
	if hdr.Len < 4 || hdr.Len > m.Length {
		return hdr, nil, ErrXCPParseError
	}

	var opts []XCPOption
	if hdr.Code == ConfReq {
		remaining := win[4:hdr.Len]
		want := int(hdr.Len) - 4
		consumed := 0
		for consumed < want {
			if len(remaining) < 2 {
				return hdr, nil, ErrXCPParseError
			}
			optType := remaining[0]
			optLen := int(remaining[1])
			if optLen < 2 || optLen > len(remaining) {
				return hdr, nil, ErrXCPParseError
			}
			opts = append(opts, XCPOption{Type: optType, Value: append([]byte{}, remaining[2:optLen]...)})
			remaining = remaining[optLen:]
			consumed += optLen
		}
		if consumed != want {
			return hdr, nil, ErrXCPParseError
		}
	}
	return hdr, opts, nil
}

// IsAckClass reports whether code is one whose Id must echo the
// interface's last sent tx_id (TERM_ACK, CONF_ACK, CONF_NAK, CONF_REJ).
func IsAckClass(code XCPCode) bool {
	switch code {
	case ConfAck, ConfNak, ConfRej, TermAck:
		return true
	default:
		return false
	}
}

// AckCodeFor returns the acknowledgement code for a request code (the
// receive handler rewrites Code in place and turns the packet around).
func AckCodeFor(code XCPCode) (XCPCode, bool) {
	switch code {
	case ConfReq:
		return ConfAck, true
	case TermReq:
		return TermAck, true
	case EchoReq:
		return EchoRep, true
	default:
		return 0, false
	}
}

// RewriteCode overwrites the Code byte of an in-window XCP message
// in place (the packet is echoed back as-is otherwise), used to turn a
// request into its acknowledgement.
func RewriteCode(pkt pktbuf.Packet, code XCPCode) error {
	win, err := pkt.HeaderWindow(1)
	if err != nil {
		return err
	}
	win[0] = byte(code)
	return nil
}

// BuildXCPTx appends a freshly built Code/Id/Length/options message to
// pkt's current window (used for interface-initiated CONF_REQ/TERM_REQ,
// not for in-place Rx turnarounds). The caller allocates pkt with enough
// trailing capacity for 4+len(optionsWire) bytes.
func BuildXCPTx(pkt pktbuf.Packet, code XCPCode, id uint8, optionsWire []byte) error {
	total := 4 + len(optionsWire)
	if err := pkt.Append(uint16(total)); err != nil {
		return err
	}
	m := pkt.Meta()
	hdr := make([]byte, total)
	hdr[0] = byte(code)
	hdr[1] = id
	binary.BigEndian.PutUint16(hdr[2:4], uint16(total))
	copy(hdr[4:], optionsWire)
	return pkt.WriteAt(m.Offset, hdr)
}

// MagicNumberOption builds the single Magic-Number option LCP sends in
// every CONF_REQ (spec.md §4.4): type 5, value 0x11111111.
func MagicNumberOption() []byte {
	return []byte{5, 6, 0x11, 0x11, 0x11, 0x11}
}
