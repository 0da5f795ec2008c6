package ahdlc

import (
	"context"
	"testing"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
	"github.com/stretchr/testify/require"
)

func newTestBuf(t *testing.T, body []byte, headroom, tailroom int) pktbuf.Packet {
	t.Helper()
	pool := pktbuf.NewBufPool(1, uint16(headroom+len(body)+tailroom))
	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	pkt.Meta().Offset = uint16(headroom)
	pkt.Meta().Length = uint16(len(body))
	require.NoError(t, pkt.WriteAt(uint16(headroom), body))
	return pkt
}

func window(t *testing.T, pkt pktbuf.Packet) []byte {
	t.Helper()
	m := pkt.Meta()
	buf := make([]byte, m.Length)
	require.NoError(t, pkt.ReadAt(m.Offset, buf))
	return buf
}

// S1 — CRC-16/X.25 golden vector from spec.md §8.
func TestAppendAndVerifyCRCGolden(t *testing.T) {
	body := []byte{0x01, 0x02, 0x7e, 0x03, 0x04, 0x05, 0x7d, 0x7e, 0x06, 0x7e}
	pkt := newTestBuf(t, body, 0, 2)

	require.NoError(t, AppendCRC(pkt))
	require.Equal(t, uint16(12), pkt.Meta().Length)

	require.NoError(t, VerifyCRC(pkt))
	require.Equal(t, uint16(10), pkt.Meta().Length)
	require.Equal(t, body, window(t, pkt))
}

func TestVerifyCRCRejectsCorruption(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	pkt := newTestBuf(t, body, 0, 2)
	require.NoError(t, AppendCRC(pkt))

	m := pkt.Meta()
	corrupt := make([]byte, m.Length)
	pkt.ReadAt(m.Offset, corrupt)
	corrupt[0] ^= 0xff
	pkt.WriteAt(m.Offset, corrupt)

	require.ErrorIs(t, VerifyCRC(pkt), ErrRxBadCRC)
}

func TestStripDelimiters(t *testing.T) {
	pkt := newTestBuf(t, []byte{FlagByte, 1, 2, 3, FlagByte}, 0, 0)
	require.NoError(t, StripDelimiters(pkt))
	require.Equal(t, []byte{1, 2, 3}, window(t, pkt))
}

func TestStripDelimitersHandlesMissingFlags(t *testing.T) {
	pkt := newTestBuf(t, []byte{1, 2, 3}, 0, 0)
	require.NoError(t, StripDelimiters(pkt))
	require.Equal(t, []byte{1, 2, 3}, window(t, pkt))
}

func TestStripControlCharsUnescapes(t *testing.T) {
	// Encoded form of {0x7e, 0x01, 0x7d}: 7d 5e 01 7d 5d
	pkt := newTestBuf(t, []byte{EscapeByte, 0x5e, 0x01, EscapeByte, 0x5d}, 0, 0)
	require.NoError(t, StripControlChars(pkt))
	require.Equal(t, []byte{FlagByte, 0x01, EscapeByte}, window(t, pkt))
}

func TestStripControlCharsRejectsTrailingEscape(t *testing.T) {
	pkt := newTestBuf(t, []byte{0x01, EscapeByte}, 0, 0)
	require.ErrorIs(t, StripControlChars(pkt), ErrRxControlChar)
}

func TestStripControlCharsRejectsBadEscapeTarget(t *testing.T) {
	pkt := newTestBuf(t, []byte{EscapeByte, 0x01}, 0, 0)
	require.ErrorIs(t, StripControlChars(pkt), ErrRxControlChar)
}

func TestEncodeControlCharsStuffsReservedBytes(t *testing.T) {
	body := []byte{FlagByte, 0x01, EscapeByte}
	pkt := newTestBuf(t, body, 0, 2)
	require.NoError(t, EncodeControlChars(pkt))
	require.Equal(t, []byte{EscapeByte, 0x5e, 0x01, EscapeByte, 0x5d}, window(t, pkt))
}

func TestEncodeControlCharsFailsWithoutRoom(t *testing.T) {
	body := []byte{FlagByte, FlagByte}
	pkt := newTestBuf(t, body, 0, 0) // no tailroom for 2 extra bytes
	require.ErrorIs(t, EncodeControlChars(pkt), ErrTxControlChar)
}

// Invariant 3 — AHDLC round-trip is identity on a body without reserved
// bytes outside of deliberate stuffing targets (spec.md §8, invariant 3).
func TestRoundTripIsIdentity(t *testing.T) {
	body := []byte{0x11, 0x22, FlagByte, 0x33, EscapeByte, 0x44, 0xff, 0x00}
	tx := newTestBuf(t, append([]byte{}, body...), 0, 8)

	require.NoError(t, AppendCRC(tx))
	require.NoError(t, EncodeControlChars(tx))

	framed := window(t, tx)

	rxBody := make([]byte, len(framed)+2)
	copy(rxBody[1:], framed)
	rxBody[0] = FlagByte
	rxBody[len(rxBody)-1] = FlagByte
	rx := newTestBuf(t, rxBody, 0, 0)

	require.NoError(t, StripDelimiters(rx))
	require.NoError(t, StripControlChars(rx))
	require.NoError(t, VerifyCRC(rx))
	require.Equal(t, body, window(t, rx))
}
