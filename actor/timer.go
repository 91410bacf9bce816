// spec.md §4.6 timer service: SendAfter, Sleep (implemented via a
// zero-payload self-send), and receive-timeouts for selective receive.
// No example repo in the pack implements a timer wheel; this is built
// directly on stdlib time.AfterFunc, which already gives O(1) amortized
// scheduling without runtime-global bookkeeping (see DESIGN.md for why no
// third-party timer-wheel library was pulled in for this).
package actor

import (
	"sync"
	"time"
)

// TimerRef identifies a scheduled timer so it can be canceled.
type TimerRef uint64

type timerService struct {
	mu         sync.Mutex
	next       uint64
	pending    map[TimerRef]*time.Timer
	resolution time.Duration
}

func newTimerService(resolution time.Duration) *timerService {
	return &timerService{pending: make(map[TimerRef]*time.Timer), resolution: resolution}
}

// round bumps d up to the next multiple of the configured resolution
// (internal/rtconfig.Config.TimerResolution, spec.md §9's "timer wheel
// resolution" knob). A non-positive resolution disables rounding.
func (ts *timerService) round(d time.Duration) time.Duration {
	if ts.resolution <= 0 || d <= 0 {
		return d
	}
	if rem := d % ts.resolution; rem != 0 {
		d += ts.resolution - rem
	}
	return d
}

// sendAfter schedules v to be delivered to target after d elapses,
// returning a ref that CancelTimer can use to abort it before it fires.
func (ts *timerService) sendAfter(rt *Runtime, target PID, v any, d time.Duration) TimerRef {
	d = ts.round(d)
	ts.mu.Lock()
	ts.next++
	ref := TimerRef(ts.next)
	ts.mu.Unlock()

	t := time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.pending, ref)
		ts.mu.Unlock()
		rt.deliver(target, PID{}, v)
	})

	ts.mu.Lock()
	ts.pending[ref] = t
	ts.mu.Unlock()
	return ref
}

// cancel aborts a pending timer; it is a no-op if the timer already fired
// or was already canceled.
func (ts *timerService) cancel(ref TimerRef) bool {
	ts.mu.Lock()
	t, ok := ts.pending[ref]
	if ok {
		delete(ts.pending, ref)
	}
	ts.mu.Unlock()
	if !ok {
		return false
	}
	return t.Stop()
}
