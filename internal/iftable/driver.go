package iftable

import "github.com/malbeclabs/rnetd/internal/pktbuf"

// Driver is the external RX/TX collaborator spec.md §6 names
// (rx_handler_init, rx_handler_enqueue_buf, rx_handler_for_ahdlc): whatever
// supplies framed bytes off the wire and accepts framed bytes for
// transmission. A simulation implementation stands in for real hardware
// here, the same seam the teacher gives Netlinker in internal/netlink.
type Driver interface {
	// Start begins delivering received frames for intfc to enqueue, until
	// Stop is called or the driver hits an unrecoverable error.
	Start(intfc uint8, enqueue func(pktbuf.Packet)) error

	// Send transmits a fully-framed outbound packet. The driver owns
	// releasing pkt back to its pool once the transmit completes.
	Send(pkt pktbuf.Packet)

	// Stop releases the underlying transport. Safe to call once Start has
	// returned or failed.
	Stop()
}
