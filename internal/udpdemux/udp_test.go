package udpdemux

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/malbeclabs/rnetd/internal/ipstack"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func newUDPBuf(t *testing.T, body []byte, headroom, tailroom int) pktbuf.Packet {
	t.Helper()
	pool := pktbuf.NewBufPool(1, uint16(headroom+len(body)+tailroom))
	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	pkt.Meta().Offset = uint16(headroom)
	pkt.Meta().Length = uint16(len(body))
	require.NoError(t, pkt.WriteAt(uint16(headroom), body))
	return pkt
}

// S3 — IPv4/UDP Rx: src=192.168.2.145, dst=192.168.1.1, src_port=1560,
// dst_port=53, 42-byte payload (spec.md §8). The checksum is computed
// here (the scenario's literal wire bytes aren't reproduced verbatim)
// but the header layout, wildcard demux, and strip behavior match.
func TestDecodeRxStripsHeaderAndVerifiesChecksum(t *testing.T) {
	src := []byte{192, 168, 2, 145}
	dst := []byte{192, 168, 1, 1}
	payload := make([]byte, 42)
	for i := range payload {
		payload[i] = byte(i)
	}
	datagram := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(datagram[0:2], 1560)
	binary.BigEndian.PutUint16(datagram[2:4], 53)
	binary.BigEndian.PutUint16(datagram[4:6], uint16(len(datagram)))
	copy(datagram[8:], payload)

	var s, d [4]byte
	copy(s[:], src)
	copy(d[:], dst)
	cksum := ipstack.L4ChecksumIPv4(s, d, ipstack.ProtoUDP, datagram, true)
	binary.BigEndian.PutUint16(datagram[6:8], cksum)

	pkt := newUDPBuf(t, datagram, 0, 0)
	h, err := DecodeRx(pkt, src, dst, false)
	require.NoError(t, err)
	require.Equal(t, uint16(1560), h.SrcPort)
	require.Equal(t, uint16(53), h.DstPort)
	require.Equal(t, uint16(len(payload)), pkt.Meta().Length)

	out := make([]byte, len(payload))
	require.NoError(t, pkt.ReadAt(pkt.Meta().Offset, out))
	require.Equal(t, payload, out)
}

func TestDecodeRxAcceptsZeroChecksumAsNotComputed(t *testing.T) {
	datagram := make([]byte, 10)
	binary.BigEndian.PutUint16(datagram[4:6], 10)
	pkt := newUDPBuf(t, datagram, 0, 0)
	_, err := DecodeRx(pkt, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, false)
	require.NoError(t, err)
}

func TestDecodeRxRejectsBadChecksum(t *testing.T) {
	datagram := make([]byte, 10)
	binary.BigEndian.PutUint16(datagram[4:6], 10)
	datagram[6], datagram[7] = 0xde, 0xad
	pkt := newUDPBuf(t, datagram, 0, 0)
	_, err := DecodeRx(pkt, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, false)
	require.ErrorIs(t, err, ErrBadChecksum)
}

func TestDecodeRxRejectsTooSmall(t *testing.T) {
	pkt := newUDPBuf(t, []byte{1, 2, 3}, 0, 0)
	_, err := DecodeRx(pkt, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, false)
	require.ErrorIs(t, err, ErrTooSmall)
}

func TestEncodeTxClientModeUsesCircuitPeerPort(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	pkt := newUDPBuf(t, payload, headerLen, 0)
	circuit := Circuit{SelfPort: 5000, PeerPort: 53}

	dst, swap, err := EncodeTx(pkt, circuit, 0, []byte{10, 0, 0, 1}, []byte{10, 0, 0, 2}, false)
	require.NoError(t, err)
	require.False(t, swap)
	require.Equal(t, uint16(53), dst)

	hdr := make([]byte, headerLen)
	require.NoError(t, pkt.ReadAt(pkt.Meta().Offset, hdr))
	require.Equal(t, uint16(5000), binary.BigEndian.Uint16(hdr[0:2]))
	require.Equal(t, uint16(53), binary.BigEndian.Uint16(hdr[2:4]))
}

func TestEncodeTxServerModeSwapsAndUsesReplyPort(t *testing.T) {
	pkt := newUDPBuf(t, []byte{1, 2}, headerLen, 0)
	circuit := Circuit{SelfPort: 53, PeerPort: 0}

	dst, swap, err := EncodeTx(pkt, circuit, 1560, []byte{192, 168, 1, 1}, []byte{192, 168, 2, 145}, false)
	require.NoError(t, err)
	require.True(t, swap)
	require.Equal(t, uint16(1560), dst)
}
