package ppp

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func newBuf(t *testing.T, body []byte, headroom, tailroom int) pktbuf.Packet {
	t.Helper()
	pool := pktbuf.NewBufPool(1, uint16(headroom+len(body)+tailroom))
	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	pkt.Meta().Offset = uint16(headroom)
	pkt.Meta().Length = uint16(len(body))
	require.NoError(t, pkt.WriteAt(uint16(headroom), body))
	return pkt
}

func TestStripRxRecognizesProtocol(t *testing.T) {
	body := []byte{0xff, 0x03, 0xc0, 0x21, 0x01, 0x02, 0x03}
	pkt := newBuf(t, body, 0, 0)

	tag, err := StripRx(pkt)
	require.NoError(t, err)
	require.Equal(t, pktbuf.ProtoLCP, tag)
	require.Equal(t, pktbuf.ProtoLCP, pkt.Meta().PreviousPH)
	require.Equal(t, uint16(3), pkt.Meta().Length)
}

func TestStripRxRejectsBadACFC(t *testing.T) {
	body := []byte{0x00, 0x00, 0xc0, 0x21}
	pkt := newBuf(t, body, 0, 0)
	_, err := StripRx(pkt)
	require.ErrorIs(t, err, ErrHeaderCorrupted)
}

func TestStripRxRejectsUnknownProtocol(t *testing.T) {
	body := []byte{0xff, 0x03, 0x12, 0x34}
	pkt := newBuf(t, body, 0, 0)
	_, err := StripRx(pkt)
	require.ErrorIs(t, err, ErrOtherProtocolUnsupported)
}

func TestBuildTxRoundTrip(t *testing.T) {
	payload := []byte{0xaa, 0xbb}
	pkt := newBuf(t, payload, PrefixLength, 0)
	pkt.Meta().PreviousPH = pktbuf.ProtoIPv4

	require.NoError(t, BuildTx(pkt))
	require.Equal(t, uint16(0), pkt.Meta().Offset)
	require.Equal(t, uint16(6), pkt.Meta().Length)

	tag, err := StripRx(pkt)
	require.NoError(t, err)
	require.Equal(t, pktbuf.ProtoIPv4, tag)
	out := make([]byte, 2)
	require.NoError(t, pkt.ReadAt(pkt.Meta().Offset, out))
	require.Equal(t, payload, out)
}

func TestBuildTxFailsWithoutHeadroom(t *testing.T) {
	pkt := newBuf(t, []byte{1, 2}, 2, 0)
	pkt.Meta().PreviousPH = pktbuf.ProtoIPv4
	require.ErrorIs(t, BuildTx(pkt), pktbuf.ErrUnderrun)
}

func xcpBody(code XCPCode, id uint8, opts [][2]byte) []byte {
	length := 4
	for _, o := range opts {
		length += int(o[1])
	}
	buf := make([]byte, 0, length)
	buf = append(buf, byte(code), id, 0, 0)
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	for _, o := range opts {
		buf = append(buf, o[0], o[1])
		buf = append(buf, make([]byte, int(o[1])-2)...)
	}
	return buf
}

func TestParseXCPConfReqWellFormed(t *testing.T) {
	body := xcpBody(ConfReq, 7, [][2]byte{{5, 6}}) // option: type 5, len 6 (4 value bytes)
	pkt := newBuf(t, body, 0, 0)

	hdr, opts, err := ParseXCP(pkt)
	require.NoError(t, err)
	require.Equal(t, ConfReq, hdr.Code)
	require.Equal(t, uint8(7), hdr.ID)
	require.Len(t, opts, 1)
	require.Equal(t, uint8(5), opts[0].Type)
	require.Len(t, opts[0].Value, 4)
}

// S6 — malformed option list: Length=10 reserves 6 option bytes, but the
// declared option lengths don't consume them cleanly.
func TestParseXCPRejectsOptionSumMismatch(t *testing.T) {
	buf := []byte{byte(ConfReq), 1, 0, 10, 5, 4, 0, 0, 9, 1}
	pkt := newBuf(t, buf, 0, 0)
	_, _, err := ParseXCP(pkt)
	require.ErrorIs(t, err, ErrXCPParseError)
}

func TestParseXCPAcceptsExactOptionSum(t *testing.T) {
	buf := []byte{byte(ConfReq), 1, 0, 8, 5, 4, 0, 0}
	pkt := newBuf(t, buf, 0, 0)
	_, opts, err := ParseXCP(pkt)
	require.NoError(t, err)
	require.Len(t, opts, 1)
}

func TestParseXCPRejectsLengthBelowMinimum(t *testing.T) {
	buf := []byte{byte(ConfAck), 1, 0, 2}
	pkt := newBuf(t, buf, 0, 0)
	_, _, err := ParseXCP(pkt)
	require.ErrorIs(t, err, ErrXCPParseError)
}

func TestIsAckClass(t *testing.T) {
	require.True(t, IsAckClass(ConfAck))
	require.True(t, IsAckClass(TermAck))
	require.False(t, IsAckClass(ConfReq))
}
