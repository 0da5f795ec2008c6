package ipstack

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

const ipv4HeaderLen = 20

var (
	ErrIPv4TooSmall        = errors.New("ipstack: ipv4 packet shorter than a header")
	ErrIPv4HeaderCorrupted = errors.New("ipstack: ipv4 header malformed")
	ErrIPv4BadChecksum     = errors.New("ipstack: ipv4 header checksum mismatch")
)

// IPv4Header is the subset of header fields the demux and ICMP turnaround
// need; options are never supported (spec.md §4.5 Non-goals).
type IPv4Header struct {
	TotalLength uint16
	Protocol    uint8
	TTL         uint8
	Src         [4]byte
	Dst         [4]byte
}

// DecodeIPv4Rx validates and strips a 20-byte IPv4 header from pkt's
// current window, per spec.md §4.5: version must be 4, IHL must be 5
// (no options), total_length must fit the window, and the header checksum
// must validate. On success pkt's window is trimmed to total_length and
// then advanced past the header, leaving exactly the L4 payload.
func DecodeIPv4Rx(pkt pktbuf.Packet) (IPv4Header, error) {
	m := pkt.Meta()
	if m.Length < ipv4HeaderLen {
		return IPv4Header{}, ErrIPv4TooSmall
	}
	hdr, err := pkt.HeaderWindow(ipv4HeaderLen)
	if err != nil {
		return IPv4Header{}, err
	}

	version := hdr[0] >> 4
	ihl := hdr[0] & 0x0f
	if version != 4 || ihl != 5 {
		return IPv4Header{}, ErrIPv4HeaderCorrupted
	}

	totalLength := binary.BigEndian.Uint16(hdr[2:4])
	if totalLength < ipv4HeaderLen || totalLength > m.Length {
		return IPv4Header{}, ErrIPv4HeaderCorrupted
	}
	if !VerifyIPv4HeaderChecksum(hdr) {
		return IPv4Header{}, ErrIPv4BadChecksum
	}

	var h IPv4Header
	h.TotalLength = totalLength
	h.TTL = hdr[8]
	h.Protocol = hdr[9]
	copy(h.Src[:], hdr[12:16])
	copy(h.Dst[:], hdr[16:20])

	if m.Length > totalLength {
		if err := pkt.Shrink(m.Length - totalLength); err != nil {
			return IPv4Header{}, err
		}
	}
	if err := pkt.AdvanceOffset(ipv4HeaderLen); err != nil {
		return IPv4Header{}, err
	}
	return h, nil
}

// EncodeIPv4Tx prepends a 20-byte IPv4 header over pkt's current payload
// (the L4 datagram), filling total_length from the current window length
// and computing the header checksum.
func EncodeIPv4Tx(pkt pktbuf.Packet, proto, ttl uint8, src, dst [4]byte) error {
	payloadLen := pkt.Meta().Length
	if err := pkt.Prepend(ipv4HeaderLen); err != nil {
		return err
	}
	hdr, err := pkt.HeaderWindow(ipv4HeaderLen)
	if err != nil {
		return err
	}

	hdr[0] = 0x45 // version 4, IHL 5
	hdr[1] = 0
	binary.BigEndian.PutUint16(hdr[2:4], ipv4HeaderLen+payloadLen)
	hdr[4], hdr[5] = 0, 0 // identification
	hdr[6], hdr[7] = 0, 0 // flags/fragment offset: never fragmented (Non-goal)
	hdr[8] = ttl
	hdr[9] = proto
	hdr[10], hdr[11] = 0, 0
	copy(hdr[12:16], src[:])
	copy(hdr[16:20], dst[:])

	binary.BigEndian.PutUint16(hdr[10:12], IPv4HeaderChecksum(hdr))
	return nil
}
