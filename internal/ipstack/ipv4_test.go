package ipstack

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func newIPv4Buf(t *testing.T, body []byte, headroom, tailroom int) pktbuf.Packet {
	t.Helper()
	pool := pktbuf.NewBufPool(1, uint16(headroom+len(body)+tailroom))
	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	pkt.Meta().Offset = uint16(headroom)
	pkt.Meta().Length = uint16(len(body))
	require.NoError(t, pkt.WriteAt(uint16(headroom), body))
	return pkt
}

// S2/S3 — a well-formed IPv4/UDP datagram decodes and yields the exact L4
// payload window (spec.md §8).
func TestDecodeIPv4RxStripsHeader(t *testing.T) {
	hdr := []byte{
		0x45, 0x00, 0x00, 0x1c, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0, 0, 192, 168, 2, 145, 192, 168, 1, 1,
	}
	binary.BigEndian.PutUint16(hdr[10:12], IPv4HeaderChecksum(hdr))
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	pkt := newIPv4Buf(t, append(append([]byte{}, hdr...), payload...), 0, 0)

	h, err := DecodeIPv4Rx(pkt)
	require.NoError(t, err)
	require.Equal(t, ProtoUDP, h.Protocol)
	require.Equal(t, [4]byte{192, 168, 2, 145}, h.Src)
	require.Equal(t, [4]byte{192, 168, 1, 1}, h.Dst)
	require.Equal(t, uint16(8), pkt.Meta().Length)

	out := make([]byte, 8)
	require.NoError(t, pkt.ReadAt(pkt.Meta().Offset, out))
	require.Equal(t, payload, out)
}

func TestDecodeIPv4RxTrimsTrailingPadding(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	hdr[9] = ProtoUDP
	binary.BigEndian.PutUint16(hdr[2:4], 24) // 20-byte header + 4-byte payload
	binary.BigEndian.PutUint16(hdr[10:12], IPv4HeaderChecksum(hdr))
	full := append(append([]byte{}, hdr...), []byte{1, 2, 3, 4, 0xff, 0xff}...) // 2 trailing pad bytes
	pkt := newIPv4Buf(t, full, 0, 0)

	_, err := DecodeIPv4Rx(pkt)
	require.NoError(t, err)
	require.Equal(t, uint16(4), pkt.Meta().Length)
}

func TestDecodeIPv4RxRejectsTooSmall(t *testing.T) {
	pkt := newIPv4Buf(t, []byte{0x45, 0x00, 0x00, 0x05}, 0, 0)
	_, err := DecodeIPv4Rx(pkt)
	require.ErrorIs(t, err, ErrIPv4TooSmall)
}

func TestDecodeIPv4RxRejectsBadVersion(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x55 // version 5
	binary.BigEndian.PutUint16(hdr[2:4], 20)
	pkt := newIPv4Buf(t, hdr, 0, 0)
	_, err := DecodeIPv4Rx(pkt)
	require.ErrorIs(t, err, ErrIPv4HeaderCorrupted)
}

func TestDecodeIPv4RxRejectsBadChecksum(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	binary.BigEndian.PutUint16(hdr[2:4], 20)
	hdr[10], hdr[11] = 0xde, 0xad
	pkt := newIPv4Buf(t, hdr, 0, 0)
	_, err := DecodeIPv4Rx(pkt)
	require.ErrorIs(t, err, ErrIPv4BadChecksum)
}

func TestEncodeIPv4TxBuildsValidHeader(t *testing.T) {
	payload := []byte{9, 9, 9, 9}
	pkt := newIPv4Buf(t, payload, ipv4HeaderLen, 0)

	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	require.NoError(t, EncodeIPv4Tx(pkt, ProtoICMP, 64, src, dst))
	require.Equal(t, uint16(0), pkt.Meta().Offset)
	require.Equal(t, uint16(24), pkt.Meta().Length)

	h, err := DecodeIPv4Rx(pkt)
	require.NoError(t, err)
	require.Equal(t, ProtoICMP, h.Protocol)
	require.Equal(t, uint8(64), h.TTL)
	require.Equal(t, src, h.Src)
	require.Equal(t, dst, h.Dst)
}

func TestEncodeIPv4TxFailsWithoutHeadroom(t *testing.T) {
	pkt := newIPv4Buf(t, []byte{1, 2}, 4, 0)
	require.ErrorIs(t, EncodeIPv4Tx(pkt, ProtoUDP, 64, [4]byte{}, [4]byte{}), pktbuf.ErrUnderrun)
}
