// Package icmpecho implements the ICMPv4/ICMPv6 echo-request turnaround
// described in spec.md §4.7.
package icmpecho

import (
	"encoding/binary"
	"errors"

	"github.com/malbeclabs/rnetd/internal/ipstack"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

const headerLen = 8 // type, code, checksum, id, sequence

const (
	TypeEchoRequestV4 uint8 = 8
	TypeEchoReplyV4   uint8 = 0
	TypeEchoRequestV6 uint8 = 128
	TypeEchoReplyV6   uint8 = 129
)

var (
	ErrNotEchoRequest = errors.New("icmpecho: not an echo request")
	ErrTooSmall       = errors.New("icmpecho: packet shorter than an icmp header")
)

// Turnaround rewrites an echo request in place into an echo reply: type
// set to the reply code, code zeroed, checksum zeroed (FinalizeChecksum
// fills it in once the Tx addresses are final), previous_ph stamped
// ICMP/ICMPv6, and circuit stamped SwapSrcDest so the IP Tx step swaps
// source and destination. Any other ICMP type returns ErrNotEchoRequest;
// the caller discards the packet silently per spec.
func Turnaround(pkt pktbuf.Packet, isIPv6 bool) error {
	m := pkt.Meta()
	if m.Length < headerLen {
		return ErrTooSmall
	}
	hdr, err := pkt.HeaderWindow(headerLen)
	if err != nil {
		return err
	}

	req, reply, tag := TypeEchoRequestV4, TypeEchoReplyV4, pktbuf.ProtoICMP
	if isIPv6 {
		req, reply, tag = TypeEchoRequestV6, TypeEchoReplyV6, pktbuf.ProtoICMPv6
	}
	if hdr[0] != req {
		return ErrNotEchoRequest
	}

	hdr[0] = reply
	hdr[1] = 0
	hdr[2], hdr[3] = 0, 0
	m.PreviousPH = tag
	m.Circuit = pktbuf.SwapSrcDest
	return nil
}

// FinalizeChecksum computes and writes the ICMP/ICMPv6 checksum once the
// Tx src/dest addresses are final. ICMPv4 has no pseudo-header; ICMPv6
// checksums over the IPv6 pseudo-header like any other L4 protocol.
func FinalizeChecksum(pkt pktbuf.Packet, srcIP, dstIP []byte, isIPv6 bool) error {
	m := pkt.Meta()
	body := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, body); err != nil {
		return err
	}

	var cksum uint16
	if isIPv6 {
		var s, d [16]byte
		copy(s[:], srcIP)
		copy(d[:], dstIP)
		cksum = ipstack.L4ChecksumIPv6(s, d, ipstack.ProtoICMPv6, body)
	} else {
		cksum = ipstack.L4ChecksumIPv4([4]byte{}, [4]byte{}, ipstack.ProtoICMP, body, false)
	}

	hdr, err := pkt.HeaderWindow(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(hdr[2:4], cksum)
	return nil
}
