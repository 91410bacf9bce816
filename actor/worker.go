// Grounded on vendor/github.com/lguibr/pongo/bollywood/engine.go's single
// dispatch loop, generalized to spec.md §5's M:N scheduler: N worker
// goroutines, each with three priority-ordered local run queues plus a
// shared overflow queue, work-stealing restricted to processes that have
// never yet been resumed (spec.md §5 "a process becomes non-migratable
// once it has run"). Worker goroutine lifecycle is managed by
// golang.org/x/sync/errgroup, the same "fan out N goroutines, stop on
// first error or context cancellation" shape webitel-im-delivery-service
// uses for its consumer pool.
package actor

import (
	"sync"
)

// runQueue is a priority-ordered FIFO: High before Normal before Low,
// FIFO within a priority.
type runQueue struct {
	mu                sync.Mutex
	cond              *sync.Cond
	high, normal, low []*process
	closed            bool
}

func newRunQueue() *runQueue {
	q := &runQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *runQueue) push(p *process) {
	q.mu.Lock()
	switch p.priority {
	case PriorityHigh:
		q.high = append(q.high, p)
	case PriorityLow:
		q.low = append(q.low, p)
	default:
		q.normal = append(q.normal, p)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// popLocked assumes q.mu is held and returns the next process, if any.
func (q *runQueue) popLocked() (*process, bool) {
	if len(q.high) > 0 {
		p := q.high[0]
		q.high = q.high[1:]
		return p, true
	}
	if len(q.normal) > 0 {
		p := q.normal[0]
		q.normal = q.normal[1:]
		return p, true
	}
	if len(q.low) > 0 {
		p := q.low[0]
		q.low = q.low[1:]
		return p, true
	}
	return nil, false
}

// pop blocks until a process is available or the queue is closed.
func (q *runQueue) pop() (*process, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if p, ok := q.popLocked(); ok {
			return p, true
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

// popNonBlocking returns immediately, even if empty.
func (q *runQueue) popNonBlocking() (*process, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// stealNeverResumed removes and returns the first queued process that has
// never been resumed, leaving every other entry (resumed or not) in place
// and in order. This is the only form of cross-queue movement the
// scheduler performs once a process has run once.
func (q *runQueue) stealNeverResumed() (*process, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, rest, ok := stealFrom(q.high); ok {
		q.high = rest
		return p, true
	}
	if p, rest, ok := stealFrom(q.normal); ok {
		q.normal = rest
		return p, true
	}
	if p, rest, ok := stealFrom(q.low); ok {
		q.low = rest
		return p, true
	}
	return nil, false
}

func stealFrom(bucket []*process) (*process, []*process, bool) {
	for i, p := range bucket {
		if p.neverResumed {
			out := append(bucket[:i:i], bucket[i+1:]...)
			return p, out, true
		}
	}
	return nil, bucket, false
}

// len reports the total number of queued processes across all three
// priority buckets, for dashboard/introspection use only.
func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal) + len(q.low)
}

func (q *runQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// worker is one scheduler thread: it drains its own local queue, falls
// back to the shared global queue, and as a last resort steals a
// never-resumed process from a sibling worker.
type worker struct {
	id    int
	rt    *Runtime
	local *runQueue
}

func (w *worker) run() error {
	for {
		p, ok := w.next()
		if !ok {
			return nil // runtime is shutting down
		}
		w.execute(p)
	}
}

// next finds the next process to run, blocking on this worker's own
// queue only after exhausting the global queue and every sibling's
// stealable work, so an idle worker doesn't sleep while steal-eligible
// work exists elsewhere.
func (w *worker) next() (*process, bool) {
	for {
		if p, ok := w.local.popNonBlocking(); ok {
			return p, true
		}
		if p, ok := w.rt.globalQueue.popNonBlocking(); ok {
			return p, true
		}
		if p, ok := w.stealFromSiblings(); ok {
			return p, true
		}
		if w.rt.isShuttingDown() {
			return nil, false
		}
		// Nothing runnable anywhere right now; block on the local queue,
		// which will be woken by a push from this worker's own pinned
		// processes, the runtime's round-robin spawn placement, or close().
		if p, ok := w.local.pop(); ok {
			return p, true
		}
		return nil, false
	}
}

func (w *worker) stealFromSiblings() (*process, bool) {
	workers := w.rt.allWorkers()
	for _, sibling := range workers {
		if sibling.id == w.id {
			continue
		}
		if p, ok := sibling.local.stealNeverResumed(); ok {
			return p, true
		}
	}
	return nil, false
}

// execute runs one scheduling turn for p: start its goroutine on first
// resume, hand it the turn via resumeCh, and wait for it to yield.
func (w *worker) execute(p *process) {
	p.setState(StateRunning)

	p.mu.Lock()
	first := p.neverResumed
	if first {
		p.neverResumed = false
		p.ownerWorker = w.id
	}
	p.mu.Unlock()

	if first {
		go w.rt.runProcessLoop(p)
	}

	p.resumeCh <- struct{}{}
	sig := <-p.yieldCh
	if sig.done {
		return
	}

	switch p.getState() {
	case StateExited, StateWaiting:
		return
	default:
		p.setState(StateReady)
		w.rt.reschedule(p)
	}
}
