// Package pump implements the dispatcher described in spec.md §4.9: a
// single task draining a mailbox of (step, packet) work items, one
// handler per step, each a short non-blocking critical section.
package pump

import (
	"github.com/malbeclabs/rnetd/internal/events"
	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/malbeclabs/rnetd/internal/metrics"
	"github.com/malbeclabs/rnetd/internal/pktbuf"
)

// StepID names one of the pump's logical steps (spec.md §4.9).
type StepID int

const (
	StepRxEntry StepID = iota
	StepAHDLCStripCC
	StepAHDLCVerifyCRC
	StepPPP
	StepLCP
	StepIPCP
	StepIPV6CP
	StepIPv4
	StepIPv6
	StepUDP
	StepICMP
	StepICMPv6
	StepTxUDP
	StepTxIPv4
	StepTxIPv6
	StepTxPPP
	StepTxAHDLCCRC
	StepTxAHDLCEncodeCC
	StepTxDriver
	StepBufDiscard
)

var stepNames = map[StepID]string{
	StepRxEntry:         "rx_entry",
	StepAHDLCStripCC:    "ahdlc_strip_cc",
	StepAHDLCVerifyCRC:  "ahdlc_verify_crc",
	StepPPP:             "ppp",
	StepLCP:             "lcp",
	StepIPCP:            "ipcp",
	StepIPV6CP:          "ipv6cp",
	StepIPv4:            "ipv4",
	StepIPv6:            "ipv6",
	StepUDP:             "udp",
	StepICMP:            "icmp",
	StepICMPv6:          "icmpv6",
	StepTxUDP:           "tx_udp",
	StepTxIPv4:          "tx_ipv4",
	StepTxIPv6:          "tx_ipv6",
	StepTxPPP:           "tx_ppp",
	StepTxAHDLCCRC:      "tx_ahdlc_crc",
	StepTxAHDLCEncodeCC: "tx_ahdlc_encode_cc",
	StepTxDriver:        "tx_driver",
	StepBufDiscard:      "buf_discard",
}

func (s StepID) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown_step"
}

// WorkItem is one mailbox entry: a step to run and the packet it runs
// against. PPP timeouts carry no packet and are posted through
// PostPPPTimeout onto a separate queue instead.
type WorkItem struct {
	Step StepID
	Pkt  pktbuf.Packet
}

// Pump owns the single mailbox and the per-step handler table.
type Pump struct {
	Table  *iftable.Table
	Events *events.Lists

	// TxPool backs interface-initiated control frames (LCP/IPCP/IPV6CP
	// CONF_REQ, LCP TERM_REQ) that don't originate from an Rx packet.
	TxPool *pktbuf.BufPool

	items       chan WorkItem
	pppTimeouts chan uint8
}

// New builds a Pump with the given mailbox depth. txPool allocates the
// control frames the PPP state machine sends on its own initiative.
func New(table *iftable.Table, ev *events.Lists, txPool *pktbuf.BufPool, mailboxDepth int) *Pump {
	return &Pump{
		Table:       table,
		Events:      ev,
		TxPool:      txPool,
		items:       make(chan WorkItem, mailboxDepth),
		pppTimeouts: make(chan uint8, mailboxDepth),
	}
}

// PostPPPTimeout enqueues a timer-expiry notification for intfc, posted
// from the timer's own goroutine (spec.md §5: "Timer expiries post
// timeout events"). Non-blocking, like Send; a full queue drops it; the
// next timer cycle will eventually redrive recovery regardless.
func (p *Pump) PostPPPTimeout(intfc uint8) {
	select {
	case p.pppTimeouts <- intfc:
	default:
	}
}

// Send enqueues an item without blocking. If the mailbox is full, the
// packet is freed immediately — spec.md §4.9's "sender must free the
// packet on enqueue failure", simplified here because the unified Packet
// interface makes "pick the correct free routine" just pkt.Release().
func (p *Pump) Send(item WorkItem) {
	select {
	case p.items <- item:
	default:
		if item.Pkt != nil {
			item.Pkt.Release()
		}
	}
}

// Run drains the mailbox and the PPP timeout queue until Close, dispatching
// each item to its step handler on the single pump goroutine. PPP timeouts
// are serviced alongside packet work items so link state is never touched
// from more than one goroutine (spec.md §5).
func (p *Pump) Run() {
	for {
		select {
		case item, ok := <-p.items:
			if !ok {
				return
			}
			p.dispatch(item)
		case intfc, ok := <-p.pppTimeouts:
			if !ok {
				return
			}
			p.dispatchPPPTimeout(intfc)
		}
	}
}

// Close closes both queues. Run returns as soon as it receives from a
// closed, empty queue; items still buffered in the other queue at that
// moment are not dispatched.
func (p *Pump) Close() {
	close(p.items)
	close(p.pppTimeouts)
}

func (p *Pump) dispatch(item WorkItem) {
	metrics.ObserveStep(item.Step.String())
	if h, ok := handlers[item.Step]; ok {
		h(p, item)
		return
	}
	if item.Pkt != nil {
		item.Pkt.Release()
	}
}

// discard stamps the drop code, counts it, and frees the packet — the
// pump's single exit path for a failed step (spec.md §7).
func (p *Pump) discard(pkt pktbuf.Packet, code pktbuf.DiscardCode) {
	pkt.Meta().Code = code
	metrics.ObserveDiscard(code)
	pkt.Release()
}

// free releases a packet that was fully and successfully processed but
// has nothing further to send (e.g. a received CONF_ACK needing no
// turnaround) — not a drop, so it isn't counted against discard metrics.
func (p *Pump) free(pkt pktbuf.Packet) {
	pkt.Release()
}
