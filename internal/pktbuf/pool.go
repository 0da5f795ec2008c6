package pktbuf

import (
	"context"
	"time"
)

// BufPool is a fixed-size pool of BufPacket objects, grounded on the
// buffered-channel-as-free-list idiom used for scheduler state in the
// teacher's probing package. Allocation from a fixed pool, never from the
// runtime heap at steady state, matches the embedded-target contract in
// spec.md §4.1.
type BufPool struct {
	ch chan *BufPacket
}

// NewBufPool pre-allocates n packets of the given buffer size.
func NewBufPool(n int, bufSize uint16) *BufPool {
	p := &BufPool{ch: make(chan *BufPacket, n)}
	for i := 0; i < n; i++ {
		p.ch <- newBufPacket(bufSize, p)
	}
	return p
}

// AllocBlocking suspends the caller until a packet is available or ctx is
// canceled. Only task-context callers may use it (spec.md §5).
func (p *BufPool) AllocBlocking(ctx context.Context) (*BufPacket, error) {
	select {
	case pkt := <-p.ch:
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllocTimed returns (nil, false) if no packet becomes available within d.
// A zero duration implements the "ticks=0" non-blocking Tx-entry variant
// from spec.md §5.
func (p *BufPool) AllocTimed(ctx context.Context, d time.Duration) (*BufPacket, bool) {
	if d <= 0 {
		select {
		case pkt := <-p.ch:
			return pkt, true
		default:
			return nil, false
		}
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	select {
	case pkt := <-p.ch:
		return pkt, true
	case <-cctx.Done():
		return nil, false
	}
}

// Len reports how many packets are currently free.
func (p *BufPool) Len() int { return len(p.ch) }

func (p *BufPool) put(pkt *BufPacket) {
	select {
	case p.ch <- pkt:
	default:
		// pool was over-allocated elsewhere; drop rather than block Release.
	}
}

// ChainPool is the particle-chain equivalent: each allocation hands out a
// fresh chain of numCells fixed-size cells linked from a pool of free cells.
type ChainPool struct {
	cells    chan *cell
	cellSize uint16
}

// NewChainPool pre-allocates n cells of the given size.
func NewChainPool(n int, cellSize uint16) *ChainPool {
	p := &ChainPool{cells: make(chan *cell, n), cellSize: cellSize}
	for i := 0; i < n; i++ {
		p.cells <- &cell{data: make([]byte, cellSize)}
	}
	return p
}

// ChainCapacity reports the usable byte capacity of a chain of numCells
// cells, the bounds-check primitive named in spec.md §4.1.
func (p *ChainPool) ChainCapacity(numCells uint16) uint16 {
	return p.cellSize * numCells
}

// AllocBlocking assembles a chain of numCells cells, suspending until all
// are available.
func (p *ChainPool) AllocBlocking(ctx context.Context, numCells uint16) (*ChainPacket, error) {
	cells := make([]*cell, 0, numCells)
	for i := uint16(0); i < numCells; i++ {
		select {
		case c := <-p.cells:
			cells = append(cells, c)
		case <-ctx.Done():
			p.release(cells)
			return nil, ctx.Err()
		}
	}
	return newChainPacket(cells, p), nil
}

// AllocTimed is the non-suspending/timed variant; on timeout it returns
// any already-claimed cells to the pool and reports (nil, false).
func (p *ChainPool) AllocTimed(ctx context.Context, d time.Duration, numCells uint16) (*ChainPacket, bool) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	cells := make([]*cell, 0, numCells)
	for i := uint16(0); i < numCells; i++ {
		select {
		case c := <-p.cells:
			cells = append(cells, c)
		case <-cctx.Done():
			p.release(cells)
			return nil, false
		}
	}
	return newChainPacket(cells, p), true
}

func (p *ChainPool) release(cells []*cell) {
	for _, c := range cells {
		c.next = nil
		select {
		case p.cells <- c:
		default:
		}
	}
}
