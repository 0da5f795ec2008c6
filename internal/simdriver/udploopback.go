// Package simdriver implements the iftable.Driver seam with a UDP-socket
// stand-in for a real serial/IRQ-fed link, so two rnetd processes (or one
// process in loopback) can exchange AHDLC frames over a local network
// instead of real hardware. Grounded on the teacher's probingWorker
// lifecycle (internal/probing/worker.go): atomic.Bool running flag,
// context-cancel Stop, sync.WaitGroup to join the reader goroutine.
package simdriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

// UDPLoopback is an iftable.Driver backed by a UDP socket: each datagram
// carries one already-delimited AHDLC frame.
type UDPLoopback struct {
	log  *slog.Logger
	pool *pktbuf.BufPool
	conn *net.UDPConn
	peer *net.UDPAddr

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewUDPLoopback binds localAddr and resolves peerAddr, both "host:port"
// strings. Pool sizes the receive buffers handed to Start's enqueue
// callback.
func NewUDPLoopback(log *slog.Logger, pool *pktbuf.BufPool, localAddr, peerAddr string) (*UDPLoopback, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("simdriver: resolve local addr: %w", err)
	}
	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("simdriver: resolve peer addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("simdriver: listen: %w", err)
	}
	return &UDPLoopback{log: log, pool: pool, conn: conn, peer: peer}, nil
}

// Start launches the read loop, delivering each received datagram to
// enqueue as a freshly-allocated packet tagged with intfc. Blocking
// allocation is used so a burst of traffic stalls the reader rather than
// dropping frames — the pump's own non-blocking Send still protects it
// from an overloaded mailbox further downstream.
func (d *UDPLoopback) Start(intfc uint8, enqueue func(pktbuf.Packet)) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("simdriver: already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.readLoop(ctx, intfc, enqueue)
	}()
	return nil
}

// maxDatagramSize bounds one read from the UDP socket; comfortably above
// any AHDLC frame this stack produces.
const maxDatagramSize = 4096

func (d *UDPLoopback) readLoop(ctx context.Context, intfc uint8, enqueue func(pktbuf.Packet)) {
	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error("simdriver: read failed", "error", err)
			continue
		}
		pkt, err := d.pool.AllocBlocking(ctx)
		if err != nil {
			return
		}
		if err := pkt.WriteAt(0, buf[:n]); err != nil {
			d.log.Error("simdriver: frame too large for pool buffer", "error", err, "len", n)
			pkt.Release()
			continue
		}
		m := pkt.Meta()
		m.Offset = 0
		m.Length = uint16(n)
		m.Intfc = intfc
		enqueue(pkt)
	}
}

// Send writes pkt's current window to the peer and releases it.
func (d *UDPLoopback) Send(pkt pktbuf.Packet) {
	defer pkt.Release()
	m := pkt.Meta()
	buf := make([]byte, m.Length)
	if err := pkt.ReadAt(m.Offset, buf); err != nil {
		d.log.Error("simdriver: read packet window failed", "error", err)
		return
	}
	if _, err := d.conn.WriteToUDP(buf, d.peer); err != nil {
		d.log.Error("simdriver: write failed", "error", err)
	}
}

// Stop cancels the read loop, joins it, and closes the socket.
func (d *UDPLoopback) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.cancel()
	d.conn.Close()
	d.wg.Wait()
}
