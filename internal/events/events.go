// Package events implements the three fixed event-subscriber lists of
// spec.md §4.10: init_complete, intfc_up, intfc_down.
package events

import "sync"

// Kind names one of the three event lists.
type Kind int

const (
	InitComplete Kind = iota
	IntfcUp
	IntfcDown
)

func (k Kind) String() string {
	switch k {
	case InitComplete:
		return "init_complete"
	case IntfcUp:
		return "intfc_up"
	case IntfcDown:
		return "intfc_down"
	default:
		return "unknown"
	}
}

// Event is what a subscriber receives: the interface the notification is
// about (unused/0 for InitComplete) and the event kind.
type Event struct {
	Kind  Kind
	Intfc uint8
}

// Subscribers is a fixed list of buffered channels. Delivery is
// best-effort: a full channel means the subscriber missed the
// notification, per spec.md §4.10 ("enqueue failure is not retried").
// Order of delivery follows subscription order.
type Subscribers struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewSubscribers allocates an empty subscriber list.
func NewSubscribers() *Subscribers {
	return &Subscribers{}
}

// Subscribe registers a new subscriber and returns its delivery channel.
// bufSize matches the "one-shot message" sizing the original used per
// subscriber; callers that only care about the latest notification
// should pass 1.
func (s *Subscribers) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Emit delivers ev to every subscriber in registration order, dropping
// silently (no retry) for any subscriber whose channel is full.
func (s *Subscribers) Emit(ev Event) {
	s.mu.Lock()
	subs := append([]chan Event{}, s.subs...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Lists bundles the three fixed event lists the pump notifies.
type Lists struct {
	InitComplete *Subscribers
	IntfcUp      *Subscribers
	IntfcDown    *Subscribers
}

// NewLists allocates the three lists.
func NewLists() *Lists {
	return &Lists{
		InitComplete: NewSubscribers(),
		IntfcUp:      NewSubscribers(),
		IntfcDown:    NewSubscribers(),
	}
}

// Emit routes ev to the list matching its Kind.
func (l *Lists) Emit(ev Event) {
	switch ev.Kind {
	case InitComplete:
		l.InitComplete.Emit(ev)
	case IntfcUp:
		l.IntfcUp.Emit(ev)
	case IntfcDown:
		l.IntfcDown.Emit(ev)
	}
}
