package pktbuf

// BufPacket is the contiguous fixed-capacity storage variant: one byte
// array of size RNET_BUF_SIZE (spec.md §3).
type BufPacket struct {
	meta    Meta
	storage []byte
	pool    *BufPool
}

var _ Packet = (*BufPacket)(nil)

func newBufPacket(size uint16, pool *BufPool) *BufPacket {
	return &BufPacket{storage: make([]byte, size), pool: pool}
}

func (b *BufPacket) Meta() *Meta     { return &b.meta }
func (b *BufPacket) Capacity() uint16 { return uint16(len(b.storage)) }

func (b *BufPacket) HeaderWindow(n uint16) ([]byte, error) {
	if n > b.meta.Length {
		return nil, ErrMetadataCorrupted
	}
	if err := checkBounds(&Meta{Offset: b.meta.Offset, Length: n}, b.Capacity()); err != nil {
		return nil, err
	}
	return b.storage[b.meta.Offset : b.meta.Offset+n], nil
}

func (b *BufPacket) AdvanceOffset(n uint16) error {
	if n > b.meta.Length {
		return ErrMetadataCorrupted
	}
	b.meta.Offset += n
	b.meta.Length -= n
	return nil
}

func (b *BufPacket) Shrink(n uint16) error {
	if n > b.meta.Length {
		return ErrMetadataCorrupted
	}
	b.meta.Length -= n
	return nil
}

func (b *BufPacket) Prepend(n uint16) error {
	if n > b.meta.Offset {
		return ErrUnderrun
	}
	b.meta.Offset -= n
	b.meta.Length += n
	return nil
}

func (b *BufPacket) Append(n uint16) error {
	next := Meta{Offset: b.meta.Offset, Length: b.meta.Length + n}
	if uint32(b.meta.Length)+uint32(n) < uint32(b.meta.Length) { // overflow guard
		return ErrMTUExceeded
	}
	if err := checkBounds(&next, b.Capacity()); err != nil {
		return ErrMTUExceeded
	}
	b.meta.Length += n
	return nil
}

func (b *BufPacket) ReadAt(off uint16, buf []byte) error {
	if uint32(off)+uint32(len(buf)) > uint32(b.Capacity()) {
		return ErrMetadataCorrupted
	}
	copy(buf, b.storage[off:int(off)+len(buf)])
	return nil
}

func (b *BufPacket) WriteAt(off uint16, buf []byte) error {
	if uint32(off)+uint32(len(buf)) > uint32(b.Capacity()) {
		return ErrMetadataCorrupted
	}
	copy(b.storage[off:int(off)+len(buf)], buf)
	return nil
}

func (b *BufPacket) Release() {
	if b.pool != nil {
		b.pool.put(b)
	}
}
