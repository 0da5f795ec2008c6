package ppp

import (
	"sync"
	"time"
)

// RearmableTimer is a cancellable future that posts a timeout callback into
// the pump, per spec.md §9 ("model as a cancellable future"). Arm is an
// idempotent replace: it kills any prior arm before scheduling the new one.
// Kill is always safe, armed or not (spec.md §5).
type RearmableTimer struct {
	mu   sync.Mutex
	t    *time.Timer
	fire func()
}

// NewRearmableTimer binds fire as the callback invoked (on its own
// goroutine, as time.AfterFunc does) whenever the timer expires without
// being killed or re-armed first.
func NewRearmableTimer(fire func()) *RearmableTimer {
	return &RearmableTimer{fire: fire}
}

var _ Timer = (*RearmableTimer)(nil)

// Arm schedules (or reschedules) the timer to fire after d.
func (r *RearmableTimer) Arm(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.t = time.AfterFunc(d, r.fire)
}

// Kill cancels any pending arm; safe to call when nothing is armed.
func (r *RearmableTimer) Kill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
}
