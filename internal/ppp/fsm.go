package ppp

import "time"

// State is one of the four PPP link-control states (spec.md §4.4).
type State int

const (
	StateRecovery State = iota
	StateProbing
	StateNegotiating
	StateUp
)

func (s State) String() string {
	switch s {
	case StateRecovery:
		return "recovery"
	case StateProbing:
		return "probing"
	case StateNegotiating:
		return "negotiating"
	case StateUp:
		return "up"
	default:
		return "unknown"
	}
}

// Event is one input to the state machine.
type Event int

const (
	EvInit Event = iota
	EvRxLCPConfReq
	EvRxLCPConfAck
	EvRxIPCPConfReq
	EvRxIPCPConfAck
	EvRxIPV6CPConfReq
	EvRxIPV6CPConfAck
	EvRxTerminateReq
	EvRxTerminateAck
	EvTimeoutRecovery
	EvTimeoutProbing
	EvTimeoutNegotiating
)

// Action is a side effect the pump must carry out after Event returns.
type Action int

const (
	ActionSendLCPTermReq Action = iota
	ActionSendLCPConfReq
	ActionSendIPCPConfReq
	ActionSendIPV6CPConfReq
	ActionEmitPPPUp
	ActionEmitPPPDown
	ActionNotifyIntfcUp
	ActionNotifyIntfcDown
)

// Timer arms are the source's RECOVERY/PROBING/NEGOTIATING cycle knobs.
const (
	RecoveryCycles    = 2
	NegotiationCycles = 20
)

// Timeout durations; timeScale divides all three when PPPTestModeTimeScale
// is configured > 1 (the original's PPP_TEST_MODE, spec.md's
// SUPPLEMENTED FEATURES §3 in SPEC_FULL.md).
const (
	TOR = 200 * time.Millisecond
	TOP = 1000 * time.Millisecond
	TON = 200 * time.Millisecond
)

var timeScale uint32 = 1

// SetTimeScale divides every subsequently-armed TOR/TOP/TON by n, letting a
// test harness (or rnetconfig's ppp_test_mode_time_scale) speed up PPP's
// recovery/negotiation cycles without touching the constants above. n == 0
// is treated as 1 (unscaled).
func SetTimeScale(n uint32) {
	if n == 0 {
		n = 1
	}
	timeScale = n
}

func scaled(d time.Duration) time.Duration {
	return d / time.Duration(timeScale)
}

// Options names which control protocols this interface runs. LCP is
// always required; a protocol not enabled here is already "closed".
type Options struct {
	IPCPEnabled   bool
	IPV6CPEnabled bool
}

// Timer is the minimal timer seam the FSM needs: idempotent re-arm and a
// safe-even-if-disarmed kill, per spec.md §5.
type Timer interface {
	Arm(d time.Duration)
	Kill()
}

// Link holds one interface's PPP dynamic state.
type Link struct {
	Opts Options

	State State

	LCPTxClosed, LCPRxClosed     bool
	IPCPTxClosed, IPCPRxClosed   bool
	IPV6CPTxClosed, IPV6CPRxClosed bool

	CompletionCounter int
	RxID              uint8
	TxID              uint8

	timer Timer
}

// NewLink constructs a Link bound to its interface's rearmable timer.
func NewLink(opts Options, timer Timer) *Link {
	return &Link{Opts: opts, timer: timer}
}

// Directive is the instruction the caller (the PPP Rx handler, or the pump
// on a timeout event) must act on after Event returns.
type Directive struct {
	SendAck bool
	Actions []Action
}

func (l *Link) restartRecovery() {
	l.LCPTxClosed, l.LCPRxClosed = false, false
	l.IPCPTxClosed, l.IPCPRxClosed = false, false
	l.IPV6CPTxClosed, l.IPV6CPRxClosed = false, false
	l.CompletionCounter = RecoveryCycles
	l.timer.Arm(scaled(TOR))
	l.State = StateRecovery
}

func (l *Link) allClosed() bool {
	lcpDone := l.LCPTxClosed && l.LCPRxClosed
	ipcpDone := !l.Opts.IPCPEnabled || (l.IPCPTxClosed && l.IPCPRxClosed)
	ipv6cpDone := !l.Opts.IPV6CPEnabled || (l.IPV6CPTxClosed && l.IPV6CPRxClosed)
	return lcpDone && ipcpDone && ipv6cpDone
}

// nextNeededConfReq picks which CONF_REQ to resend on a NEGOTIATING
// timeout tick: LCP first, else IPCP if configured, else IPV6CP if
// configured (spec.md §4.4). Each protocol only blocks the cascade until
// it is fully closed (tx and rx); if the blocking protocol's tx side is
// already closed, it's waiting on the peer's rx and the tick stays silent
// rather than racing ahead to the next protocol.
func (l *Link) nextNeededConfReq() (Action, bool) {
	if !l.LCPTxClosed {
		return ActionSendLCPConfReq, true
	}
	lcpClosed := l.LCPTxClosed && l.LCPRxClosed
	if !lcpClosed {
		return 0, false
	}
	if l.Opts.IPCPEnabled {
		if !l.IPCPTxClosed {
			return ActionSendIPCPConfReq, true
		}
		if !(l.IPCPTxClosed && l.IPCPRxClosed) {
			return 0, false
		}
	}
	if l.Opts.IPV6CPEnabled {
		if !l.IPV6CPTxClosed {
			return ActionSendIPV6CPConfReq, true
		}
		if !(l.IPV6CPTxClosed && l.IPV6CPRxClosed) {
			return 0, false
		}
	}
	return 0, false
}

func (l *Link) checkNegotiationComplete(d *Directive) {
	if l.State == StateNegotiating && l.allClosed() {
		l.timer.Kill()
		l.State = StateUp
		d.Actions = append(d.Actions, ActionEmitPPPUp, ActionNotifyIntfcUp)
	}
}

// Event advances the link's state machine and reports what the caller
// should do next: whether to turn the triggering packet around as an ack,
// and any side-effect Actions (send a CONF_REQ/TERM_REQ, emit an event).
func (l *Link) Event(ev Event) Directive {
	var d Directive
	prevState := l.State

	switch ev {
	case EvInit:
		l.restartRecovery()
		if prevState == StateUp {
			d.Actions = append(d.Actions, ActionEmitPPPDown, ActionNotifyIntfcDown)
		}
		return d

	case EvRxTerminateReq:
		switch prevState {
		case StateRecovery:
			l.timer.Kill()
			l.timer.Arm(scaled(TON))
			l.CompletionCounter = NegotiationCycles
			l.State = StateNegotiating
		case StateProbing, StateNegotiating:
			l.restartRecovery()
		case StateUp:
			l.restartRecovery()
			d.Actions = append(d.Actions, ActionEmitPPPDown, ActionNotifyIntfcDown)
		}
		d.SendAck = true
		return d

	case EvRxTerminateAck:
		if prevState == StateRecovery {
			l.timer.Kill()
			l.timer.Arm(scaled(TON))
			l.CompletionCounter = NegotiationCycles
			l.State = StateNegotiating
		}
		return d

	case EvRxLCPConfReq:
		switch prevState {
		case StateRecovery:
			l.LCPRxClosed = true
			l.timer.Arm(scaled(TON))
			l.CompletionCounter = NegotiationCycles
			l.State = StateNegotiating
			d.SendAck = true
		case StateProbing:
			l.LCPRxClosed = true
			l.timer.Arm(scaled(TON))
			l.State = StateNegotiating
			d.SendAck = true
		case StateNegotiating:
			l.LCPRxClosed = true
			d.SendAck = true
			l.checkNegotiationComplete(&d)
		case StateUp:
			l.restartRecovery()
			d.Actions = append(d.Actions, ActionEmitPPPDown, ActionNotifyIntfcDown)
		}
		return d
	}

	switch prevState {
	case StateRecovery:
		if ev == EvTimeoutRecovery {
			l.CompletionCounter--
			if l.CompletionCounter > 0 {
				l.timer.Arm(scaled(TOR))
				d.Actions = append(d.Actions, ActionSendLCPTermReq)
			} else {
				l.CompletionCounter = NegotiationCycles
				l.timer.Arm(scaled(TOP))
				d.Actions = append(d.Actions, ActionSendLCPConfReq)
				l.State = StateProbing
			}
		}

	case StateProbing:
		switch ev {
		case EvTimeoutProbing:
			if l.CompletionCounter > 0 {
				l.CompletionCounter--
				l.timer.Arm(scaled(TOP))
				d.Actions = append(d.Actions, ActionSendLCPConfReq)
			} else {
				l.LCPTxClosed, l.LCPRxClosed = false, false
				l.IPCPTxClosed, l.IPCPRxClosed = false, false
				l.IPV6CPTxClosed, l.IPV6CPRxClosed = false, false
				l.timer.Arm(scaled(TOR))
				l.State = StateRecovery
			}
		case EvRxLCPConfAck:
			l.LCPTxClosed = true
			l.timer.Arm(scaled(TON))
			l.State = StateNegotiating
		}

	case StateNegotiating:
		switch ev {
		case EvTimeoutNegotiating:
			if l.CompletionCounter > 0 {
				l.CompletionCounter--
				if action, ok := l.nextNeededConfReq(); ok {
					d.Actions = append(d.Actions, action)
				}
				l.timer.Arm(scaled(TON))
			} else {
				l.LCPTxClosed, l.LCPRxClosed = false, false
				l.IPCPTxClosed, l.IPCPRxClosed = false, false
				l.IPV6CPTxClosed, l.IPV6CPRxClosed = false, false
				l.timer.Arm(scaled(TOR))
				l.State = StateRecovery
			}
		case EvRxLCPConfAck:
			l.LCPTxClosed = true
			l.checkNegotiationComplete(&d)
		case EvRxIPCPConfReq:
			l.IPCPRxClosed = true
			d.SendAck = true
			l.checkNegotiationComplete(&d)
		case EvRxIPCPConfAck:
			l.IPCPTxClosed = true
			l.checkNegotiationComplete(&d)
		case EvRxIPV6CPConfReq:
			l.IPV6CPRxClosed = true
			d.SendAck = true
			l.checkNegotiationComplete(&d)
		case EvRxIPV6CPConfAck:
			l.IPV6CPTxClosed = true
			l.checkNegotiationComplete(&d)
		}

	case StateUp:
		// No further events beyond INIT/RX_LCP_CONF_REQ/RX_TERMINATE_REQ,
		// all handled above.
	}

	return d
}

// TimeoutEvent maps the link's current state to the timeout event its
// armed timer corresponds to (UP never has a timer armed).
func (l *Link) TimeoutEvent() (Event, bool) {
	switch l.State {
	case StateRecovery:
		return EvTimeoutRecovery, true
	case StateProbing:
		return EvTimeoutProbing, true
	case StateNegotiating:
		return EvTimeoutNegotiating, true
	default:
		return 0, false
	}
}

// NextTxID returns the next outgoing XCP Id, a per-interface
// monotonically incrementing counter that wraps on the wire's single
// byte (spec.md's SUPPLEMENTED FEATURES §2 in SPEC_FULL.md).
func (l *Link) NextTxID() uint8 {
	l.TxID++
	return l.TxID
}
