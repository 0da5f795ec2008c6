package ipstack

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

const ipv6HeaderLen = 40

var (
	ErrIPv6TooSmall        = errors.New("ipstack: ipv6 packet shorter than a header")
	ErrIPv6HeaderCorrupted = errors.New("ipstack: ipv6 header malformed")
)

// IPv6Header is the subset of fields the demux and ICMPv6 turnaround need.
// Extension headers are never supported (spec.md §4.5 Non-goals).
type IPv6Header struct {
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	Src           [16]byte
	Dst           [16]byte
}

// DecodeIPv6Rx validates and strips a 40-byte IPv6 header. IPv6 carries no
// header checksum; correctness relies on the L4 checksum alone.
func DecodeIPv6Rx(pkt pktbuf.Packet) (IPv6Header, error) {
	m := pkt.Meta()
	if m.Length < ipv6HeaderLen {
		return IPv6Header{}, ErrIPv6TooSmall
	}
	hdr, err := pkt.HeaderWindow(ipv6HeaderLen)
	if err != nil {
		return IPv6Header{}, err
	}

	version := hdr[0] >> 4
	if version != 6 {
		return IPv6Header{}, ErrIPv6HeaderCorrupted
	}

	payloadLength := binary.BigEndian.Uint16(hdr[4:6])
	if uint32(ipv6HeaderLen)+uint32(payloadLength) > uint32(m.Length) {
		return IPv6Header{}, ErrIPv6HeaderCorrupted
	}

	var h IPv6Header
	h.PayloadLength = payloadLength
	h.NextHeader = hdr[6]
	h.HopLimit = hdr[7]
	copy(h.Src[:], hdr[8:24])
	copy(h.Dst[:], hdr[24:40])

	total := uint16(ipv6HeaderLen) + payloadLength
	if m.Length > total {
		if err := pkt.Shrink(m.Length - total); err != nil {
			return IPv6Header{}, err
		}
	}
	if err := pkt.AdvanceOffset(ipv6HeaderLen); err != nil {
		return IPv6Header{}, err
	}
	return h, nil
}

// EncodeIPv6Tx prepends a 40-byte IPv6 header over pkt's current payload.
func EncodeIPv6Tx(pkt pktbuf.Packet, nextHeader, hopLimit uint8, src, dst [16]byte) error {
	payloadLen := pkt.Meta().Length
	if err := pkt.Prepend(ipv6HeaderLen); err != nil {
		return err
	}
	hdr, err := pkt.HeaderWindow(ipv6HeaderLen)
	if err != nil {
		return err
	}

	hdr[0] = 0x60 // version 6, traffic class/flow label left zero
	hdr[1], hdr[2], hdr[3] = 0, 0, 0
	binary.BigEndian.PutUint16(hdr[4:6], payloadLen)
	hdr[6] = nextHeader
	hdr[7] = hopLimit
	copy(hdr[8:24], src[:])
	copy(hdr[24:40], dst[:])
	return nil
}
