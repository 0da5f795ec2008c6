package icmpecho

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func newICMPBuf(t *testing.T, body []byte) pktbuf.Packet {
	t.Helper()
	pool := pktbuf.NewBufPool(1, uint16(len(body)))
	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	pkt.Meta().Length = uint16(len(body))
	require.NoError(t, pkt.WriteAt(0, body))
	return pkt
}

// S4 — ICMPv4 echo turnaround: id=1, seq=0x01a7 (spec.md §8).
func TestTurnaroundRewritesEchoRequest(t *testing.T) {
	body := make([]byte, 12)
	body[0] = TypeEchoRequestV4
	body[1] = 0
	binary.BigEndian.PutUint16(body[4:6], 1)      // id
	binary.BigEndian.PutUint16(body[6:8], 0x01a7) // seq
	copy(body[8:], []byte{0xde, 0xad, 0xbe, 0xef})
	pkt := newICMPBuf(t, body)

	require.NoError(t, Turnaround(pkt, false))

	out := make([]byte, len(body))
	require.NoError(t, pkt.ReadAt(0, out))
	require.Equal(t, TypeEchoReplyV4, out[0])
	require.Equal(t, uint8(0), out[1])
	require.Equal(t, uint16(0), binary.BigEndian.Uint16(out[2:4]))
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(out[4:6]))
	require.Equal(t, uint16(0x01a7), binary.BigEndian.Uint16(out[6:8]))
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, out[8:])
	require.Equal(t, pktbuf.ProtoICMP, pkt.Meta().PreviousPH)
	require.Equal(t, pktbuf.SwapSrcDest, pkt.Meta().Circuit)
}

func TestTurnaroundRejectsNonEchoRequest(t *testing.T) {
	body := make([]byte, 8)
	body[0] = 3 // destination unreachable
	pkt := newICMPBuf(t, body)
	require.ErrorIs(t, Turnaround(pkt, false), ErrNotEchoRequest)
}

func TestTurnaroundRejectsTooSmall(t *testing.T) {
	pkt := newICMPBuf(t, []byte{8, 0, 0})
	require.ErrorIs(t, Turnaround(pkt, false), ErrTooSmall)
}

func TestFinalizeChecksumProducesValidatingResult(t *testing.T) {
	body := make([]byte, 12)
	body[0] = TypeEchoReplyV4
	pkt := newICMPBuf(t, body)

	require.NoError(t, FinalizeChecksum(pkt, nil, nil, false))

	out := make([]byte, len(body))
	require.NoError(t, pkt.ReadAt(0, out))
	require.True(t, validChecksumOverICMPv4(out))
}

// validChecksumOverICMPv4 independently recomputes the ones'-complement
// sum over the finalized buffer (checksum field included) and checks it
// folds to the all-ones residue.
func validChecksumOverICMPv4(buf []byte) bool {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return sum == 0xffff
}

func TestTurnaroundV6UsesV6TypesAndProtocolTag(t *testing.T) {
	body := make([]byte, 8)
	body[0] = TypeEchoRequestV6
	pkt := newICMPBuf(t, body)

	require.NoError(t, Turnaround(pkt, true))
	require.Equal(t, pktbuf.ProtoICMPv6, pkt.Meta().PreviousPH)

	out := make([]byte, 1)
	require.NoError(t, pkt.ReadAt(0, out))
	require.Equal(t, TypeEchoReplyV6, out[0])
}
