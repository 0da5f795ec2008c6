package pktbuf

// Cursor is the seekable read/write cursor named in spec.md §4.1
// (set_seek(offset), read(buf, n), write(buf, n)), implemented once
// against the Packet interface so it walks cell boundaries for a
// ChainPacket and is a plain slice walk for a BufPacket.
type Cursor struct {
	pkt Packet
	pos uint16
}

// NewCursor opens a cursor over pkt positioned at start.
func NewCursor(pkt Packet, start uint16) *Cursor {
	return &Cursor{pkt: pkt, pos: start}
}

// Seek repositions the cursor.
func (c *Cursor) Seek(pos uint16) { c.pos = pos }

// Pos reports the current absolute position.
func (c *Cursor) Pos() uint16 { return c.pos }

// Read copies len(buf) bytes starting at the cursor and advances it.
func (c *Cursor) Read(buf []byte) error {
	if err := c.pkt.ReadAt(c.pos, buf); err != nil {
		return err
	}
	c.pos += uint16(len(buf))
	return nil
}

// Write copies buf into the packet starting at the cursor and advances it.
func (c *Cursor) Write(buf []byte) error {
	if err := c.pkt.WriteAt(c.pos, buf); err != nil {
		return err
	}
	c.pos += uint16(len(buf))
	return nil
}

// ReadByte reads a single byte and advances the cursor by one.
func (c *Cursor) ReadByte() (byte, error) {
	var b [1]byte
	if err := c.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes a single byte and advances the cursor by one.
func (c *Cursor) WriteByte(b byte) error {
	return c.Write([]byte{b})
}
