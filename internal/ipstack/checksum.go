// Package ipstack implements IPv4/IPv6 header (de)serialization, the IPv4
// header checksum, and the UDP/TCP/ICMPv6 pseudo-header L4 checksum.
package ipstack

import "encoding/binary"

// IP protocol numbers used by the demux (spec.md §2).
const (
	ProtoICMP   uint8 = 1
	ProtoTCP    uint8 = 6
	ProtoUDP    uint8 = 17
	ProtoICMPv6 uint8 = 58
)

func onesComplementSum(seed uint32, buf []byte) uint32 {
	sum := seed
	n := len(buf)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(buf[n-1]) << 8
	}
	return sum
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// IPv4HeaderChecksum computes the header checksum to write, given a header
// whose checksum field (bytes 10:12) is zeroed.
func IPv4HeaderChecksum(hdr []byte) uint16 {
	sum := onesComplementSum(0, hdr[0:10])
	sum = onesComplementSum(sum, hdr[12:20])
	return ^foldChecksum(sum)
}

// VerifyIPv4HeaderChecksum reports whether a received 20-byte header (with
// its actual checksum field in place) sums to the all-ones residue
// (spec.md §8, S2): a correct checksum field makes the running sum's fold
// equal 0xffff.
func VerifyIPv4HeaderChecksum(hdr []byte) bool {
	return foldChecksum(onesComplementSum(0, hdr)) == 0xffff
}

// pseudoHeaderIPv4 builds the 12-byte IPv4 pseudo-header (RFC 768).
func pseudoHeaderIPv4(src, dst [4]byte, proto uint8, l4Length uint16) []byte {
	p := make([]byte, 12)
	copy(p[0:4], src[:])
	copy(p[4:8], dst[:])
	p[8] = 0
	p[9] = proto
	binary.BigEndian.PutUint16(p[10:12], l4Length)
	return p
}

// pseudoHeaderIPv6 builds the 40-byte IPv6 pseudo-header (RFC 2460 §8.1).
func pseudoHeaderIPv6(src, dst [16]byte, nextHeader uint8, l4Length uint32) []byte {
	p := make([]byte, 40)
	copy(p[0:16], src[:])
	copy(p[16:32], dst[:])
	binary.BigEndian.PutUint32(p[32:36], l4Length)
	p[36], p[37], p[38] = 0, 0, 0
	p[39] = nextHeader
	return p
}

// L4ChecksumIPv4 computes the UDP/TCP/ICMP checksum over the IPv4
// pseudo-header plus l4 (header+payload, with the checksum field zeroed
// in the caller's copy). ICMPv4 has no pseudo-header (spec.md §4.5); pass
// usePseudoHeader=false for it.
func L4ChecksumIPv4(src, dst [4]byte, proto uint8, l4 []byte, usePseudoHeader bool) uint16 {
	var sum uint32
	if usePseudoHeader {
		sum = onesComplementSum(0, pseudoHeaderIPv4(src, dst, proto, uint16(len(l4))))
	}
	sum = onesComplementSum(sum, l4)
	return ^foldChecksum(sum)
}

// L4ChecksumIPv6 computes the UDP/TCP/ICMPv6 checksum over the IPv6
// pseudo-header plus l4; IPv6 never omits the pseudo-header.
func L4ChecksumIPv6(src, dst [16]byte, nextHeader uint8, l4 []byte) uint16 {
	sum := onesComplementSum(0, pseudoHeaderIPv6(src, dst, nextHeader, uint32(len(l4))))
	sum = onesComplementSum(sum, l4)
	return ^foldChecksum(sum)
}

// VerifyL4ChecksumIPv4 reports whether l4 (header+payload, checksum field
// as received) is valid for the given pseudo-header, using the same
// sum-to-all-ones residue check as VerifyIPv4HeaderChecksum.
func VerifyL4ChecksumIPv4(src, dst [4]byte, proto uint8, l4 []byte, usePseudoHeader bool) bool {
	var sum uint32
	if usePseudoHeader {
		sum = onesComplementSum(0, pseudoHeaderIPv4(src, dst, proto, uint16(len(l4))))
	}
	sum = onesComplementSum(sum, l4)
	return foldChecksum(sum) == 0xffff
}

// VerifyL4ChecksumIPv6 is the IPv6 counterpart of VerifyL4ChecksumIPv4.
func VerifyL4ChecksumIPv6(src, dst [16]byte, nextHeader uint8, l4 []byte) bool {
	sum := onesComplementSum(0, pseudoHeaderIPv6(src, dst, nextHeader, uint32(len(l4))))
	sum = onesComplementSum(sum, l4)
	return foldChecksum(sum) == 0xffff
}
