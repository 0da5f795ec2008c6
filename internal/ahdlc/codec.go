package ahdlc

import (
	"errors"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

const (
	FlagByte   byte = 0x7e
	EscapeByte byte = 0x7d
	xorMask    byte = 0x20
)

var (
	ErrRxControlChar = errors.New("ahdlc: invalid control-char escape sequence")
	ErrRxBadCRC      = errors.New("ahdlc: crc verification failed")
	ErrTxControlChar = errors.New("ahdlc: insufficient room to stuff control chars")
)

// StripDelimiters removes a leading and/or trailing 0x7E from the packet's
// window, adjusting offset/length. Either, both, or neither may be present.
func StripDelimiters(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	if m.Length == 0 {
		return nil
	}
	win, err := pkt.HeaderWindow(m.Length)
	if err != nil {
		return err
	}
	if win[0] == FlagByte {
		if err := pkt.AdvanceOffset(1); err != nil {
			return err
		}
	}
	m = pkt.Meta()
	if m.Length == 0 {
		return nil
	}
	win, err = pkt.HeaderWindow(m.Length)
	if err != nil {
		return err
	}
	if win[m.Length-1] == FlagByte {
		if err := pkt.Shrink(1); err != nil {
			return err
		}
	}
	return nil
}

// StripControlChars undoes byte-stuffing in place: every EscapeByte must be
// followed by another byte whose XOR-0x20 recovers FlagByte or EscapeByte
// (the only two bytes the encoder ever stuffs); anything else, including a
// trailing EscapeByte with nothing after it, is AHDLC_RX_CC.
func StripControlChars(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	start, length := m.Offset, m.Length
	if length == 0 {
		return nil
	}

	rd := pktbuf.NewCursor(pkt, start)
	wr := pktbuf.NewCursor(pkt, start)

	end := start + length
	removed := uint16(0)
	for rd.Pos() < end {
		b, err := rd.ReadByte()
		if err != nil {
			return err
		}
		if b == EscapeByte {
			if rd.Pos() >= end {
				return ErrRxControlChar
			}
			next, err := rd.ReadByte()
			if err != nil {
				return err
			}
			unescaped := next ^ xorMask
			if unescaped != FlagByte && unescaped != EscapeByte {
				return ErrRxControlChar
			}
			if err := wr.WriteByte(unescaped); err != nil {
				return err
			}
			removed++
		} else {
			if err := wr.WriteByte(b); err != nil {
				return err
			}
		}
	}
	return pkt.Shrink(removed)
}

// VerifyCRC computes CRC-16/X.25 over the current window; on success it
// shrinks Length by 2 to drop the trailing CRC bytes.
func VerifyCRC(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	if m.Length < 2 {
		return ErrRxBadCRC
	}
	buf := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, buf); err != nil {
		return err
	}
	if crcUpdate(crcStart(), buf) != goodFCS16 {
		return ErrRxBadCRC
	}
	return pkt.Shrink(2)
}

// AppendCRC computes CRC-16/X.25 over the current window and appends it,
// little-endian, growing Length by 2.
func AppendCRC(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	buf := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, buf); err != nil {
		return err
	}
	crc := crcOf(buf)
	if err := pkt.Append(2); err != nil {
		return err
	}
	m = pkt.Meta()
	return pkt.WriteAt(m.Offset+m.Length-2, []byte{byte(crc), byte(crc >> 8)})
}

// AppendDelimiters prepends and appends a 0x7E flag byte, the final Tx
// step before handing the frame to the driver.
func AppendDelimiters(pkt pktbuf.Packet) error {
	if err := pkt.Prepend(1); err != nil {
		return err
	}
	m := pkt.Meta()
	if err := pkt.WriteAt(m.Offset, []byte{FlagByte}); err != nil {
		return err
	}
	if err := pkt.Append(1); err != nil {
		return err
	}
	m = pkt.Meta()
	return pkt.WriteAt(m.Offset+m.Length-1, []byte{FlagByte})
}

// TranslationCount reports how many bytes in the window need stuffing.
func TranslationCount(pkt pktbuf.Packet) (int, error) {
	m := pkt.Meta()
	buf := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, buf); err != nil {
		return 0, err
	}
	n := 0
	for _, b := range buf {
		if b == FlagByte || b == EscapeByte {
			n++
		}
	}
	return n, nil
}

// EncodeControlChars stuffs the window in place: each FlagByte/EscapeByte
// becomes EscapeByte, byte^0x20. The packet must have enough trailing
// capacity for the growth (TranslationCount extra bytes); failing that
// bounds check is AHDLC_TX_CC, the only way this step can fail.
func EncodeControlChars(pkt pktbuf.Packet) error {
	m := pkt.Meta()
	src := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, src); err != nil {
		return err
	}

	extra := 0
	for _, b := range src {
		if b == FlagByte || b == EscapeByte {
			extra++
		}
	}
	if extra == 0 {
		return nil
	}

	if err := pkt.Append(uint16(extra)); err != nil {
		return ErrTxControlChar
	}

	out := make([]byte, 0, len(src)+extra)
	for _, b := range src {
		if b == FlagByte || b == EscapeByte {
			out = append(out, EscapeByte, b^xorMask)
		} else {
			out = append(out, b)
		}
	}
	return pkt.WriteAt(pkt.Meta().Offset, out)
}
