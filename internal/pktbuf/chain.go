package pktbuf

// cell is one fixed-size link in a particle chain.
type cell struct {
	data []byte
	next *cell
}

// ChainPacket is the particle-chain storage variant: a singly linked
// sequence of fixed-size cells presenting one logical byte stream. Only
// the head cell carries metadata; protocol headers always lie within it
// so header reads/writes stay contiguous (spec.md §3).
type ChainPacket struct {
	meta  Meta
	head  *cell
	cells []*cell // head.. in order, kept for O(1) indexed access
	size  uint16  // bytes per cell

	// TotalUsedLength and NumPcls mirror the source's extended head-cell
	// header fields; TotalUsedLength tracks meta.Length.
	TotalUsedLength uint16
	NumPcls         uint16

	pool *ChainPool
}

var _ Packet = (*ChainPacket)(nil)

func newChainPacket(cells []*cell, pool *ChainPool) *ChainPacket {
	for i := 0; i+1 < len(cells); i++ {
		cells[i].next = cells[i+1]
	}
	if len(cells) > 0 {
		cells[len(cells)-1].next = nil
	}
	var head *cell
	if len(cells) > 0 {
		head = cells[0]
	}
	return &ChainPacket{
		head:    head,
		cells:   cells,
		size:    pool.cellSize,
		NumPcls: uint16(len(cells)),
		pool:    pool,
	}
}

func (c *ChainPacket) Meta() *Meta      { return &c.meta }
func (c *ChainPacket) Capacity() uint16 { return c.size * uint16(len(c.cells)) }

func (c *ChainPacket) HeaderWindow(n uint16) ([]byte, error) {
	if n > c.meta.Length {
		return nil, ErrMetadataCorrupted
	}
	if c.meta.Offset+n > c.size {
		// Headers must lie within the head cell; a caller asking past it
		// is either buggy or facing a cell size too small for this MTU.
		return nil, ErrPclOpFailed
	}
	if err := checkBounds(&Meta{Offset: c.meta.Offset, Length: n}, c.Capacity()); err != nil {
		return nil, err
	}
	return c.head.data[c.meta.Offset : c.meta.Offset+n], nil
}

func (c *ChainPacket) AdvanceOffset(n uint16) error {
	if n > c.meta.Length {
		return ErrMetadataCorrupted
	}
	c.meta.Offset += n
	c.meta.Length -= n
	c.TotalUsedLength = c.meta.Length
	return nil
}

func (c *ChainPacket) Shrink(n uint16) error {
	if n > c.meta.Length {
		return ErrMetadataCorrupted
	}
	c.meta.Length -= n
	c.TotalUsedLength = c.meta.Length
	return nil
}

func (c *ChainPacket) Prepend(n uint16) error {
	if n > c.meta.Offset {
		return ErrUnderrun
	}
	c.meta.Offset -= n
	c.meta.Length += n
	c.TotalUsedLength = c.meta.Length
	return nil
}

func (c *ChainPacket) Append(n uint16) error {
	next := Meta{Offset: c.meta.Offset, Length: c.meta.Length + n}
	if err := checkBounds(&next, c.Capacity()); err != nil {
		return ErrMTUExceeded
	}
	c.meta.Length += n
	c.TotalUsedLength = c.meta.Length
	return nil
}

// cellFor returns the cell and in-cell byte index holding absolute offset
// off, or ErrPclOpFailed if off runs past the chain.
func (c *ChainPacket) cellFor(off uint16) (*cell, uint16, error) {
	idx := off / c.size
	if int(idx) >= len(c.cells) {
		return nil, 0, ErrPclOpFailed
	}
	return c.cells[idx], off % c.size, nil
}

func (c *ChainPacket) ReadAt(off uint16, buf []byte) error {
	pos := off
	for n := 0; n < len(buf); {
		cl, inCell, err := c.cellFor(pos)
		if err != nil {
			return err
		}
		avail := int(c.size - inCell)
		want := len(buf) - n
		if want > avail {
			want = avail
		}
		copy(buf[n:n+want], cl.data[inCell:int(inCell)+want])
		n += want
		pos += uint16(want)
	}
	return nil
}

func (c *ChainPacket) WriteAt(off uint16, buf []byte) error {
	pos := off
	for n := 0; n < len(buf); {
		cl, inCell, err := c.cellFor(pos)
		if err != nil {
			return err
		}
		avail := int(c.size - inCell)
		want := len(buf) - n
		if want > avail {
			want = avail
		}
		copy(cl.data[inCell:int(inCell)+want], buf[n:n+want])
		n += want
		pos += uint16(want)
	}
	return nil
}

func (c *ChainPacket) Release() {
	cells := c.cells
	c.meta = Meta{}
	c.cells = nil
	c.head = nil
	c.TotalUsedLength = 0
	if c.pool != nil {
		c.pool.release(cells)
	}
}
