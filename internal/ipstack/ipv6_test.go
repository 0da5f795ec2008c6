package ipstack

import (
	"encoding/binary"
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func TestDecodeIPv6RxStripsHeader(t *testing.T) {
	hdr := make([]byte, ipv6HeaderLen)
	hdr[0] = 0x60
	binary.BigEndian.PutUint16(hdr[4:6], 4)
	hdr[6] = ProtoICMPv6
	hdr[7] = 64
	src := [16]byte{0xfe, 0x80}
	dst := [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	copy(hdr[8:24], src[:])
	copy(hdr[24:40], dst[:])
	payload := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	pkt := newIPv4Buf(t, append(append([]byte{}, hdr...), payload...), 0, 0)

	h, err := DecodeIPv6Rx(pkt)
	require.NoError(t, err)
	require.Equal(t, ProtoICMPv6, h.NextHeader)
	require.Equal(t, uint8(64), h.HopLimit)
	require.Equal(t, src, h.Src)
	require.Equal(t, dst, h.Dst)
	require.Equal(t, uint16(4), pkt.Meta().Length)
}

func TestDecodeIPv6RxRejectsOversizedPayloadLength(t *testing.T) {
	hdr := make([]byte, ipv6HeaderLen)
	hdr[0] = 0x60
	binary.BigEndian.PutUint16(hdr[4:6], 100) // claims more than is present
	pkt := newIPv4Buf(t, hdr, 0, 0)
	_, err := DecodeIPv6Rx(pkt)
	require.ErrorIs(t, err, ErrIPv6HeaderCorrupted)
}

func TestEncodeIPv6TxBuildsValidHeader(t *testing.T) {
	payload := []byte{1, 2, 3}
	pkt := newIPv4Buf(t, payload, ipv6HeaderLen, 0)
	src := [16]byte{0x20, 0x01}
	dst := [16]byte{0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}

	require.NoError(t, EncodeIPv6Tx(pkt, ProtoUDP, 32, src, dst))
	require.Equal(t, uint16(0), pkt.Meta().Offset)

	h, err := DecodeIPv6Rx(pkt)
	require.NoError(t, err)
	require.Equal(t, ProtoUDP, h.NextHeader)
	require.Equal(t, uint8(32), h.HopLimit)
	require.Equal(t, src, h.Src)
	require.Equal(t, dst, h.Dst)
}

func TestEncodeIPv6TxFailsWithoutHeadroom(t *testing.T) {
	pkt := newIPv4Buf(t, []byte{1, 2}, 4, 0)
	require.ErrorIs(t, EncodeIPv6Tx(pkt, ProtoUDP, 64, [16]byte{}, [16]byte{}), pktbuf.ErrUnderrun)
}
