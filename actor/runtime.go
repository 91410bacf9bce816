// Grounded on vendor/github.com/lguibr/pongo/bollywood/engine.go (registry
// of live processes, Spawn/Send/Shutdown surface, fmt.Printf logging
// style) generalized to spec.md §6's full runtime ABI: an M:N scheduler
// over golang.org/x/sync/errgroup-managed workers instead of bollywood's
// one-goroutine-per-actor free-for-all, plus links/monitors/supervision
// this teacher doesn't have.
package actor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime is the actor system: the set of live processes, the scheduler
// pool that runs them, and the supporting services (names, timers,
// cross-node transport) every process's ActorContext is backed by.
type Runtime struct {
	mu        sync.RWMutex
	processes map[PID]*process

	workers     []*worker
	globalQueue *runQueue

	defaultRefill uint32

	names  *nameRegistry
	global *nameRegistry
	timers *timerService

	gcThreshold int

	eg        *errgroup.Group
	egCtx     context.Context
	cancel    context.CancelFunc
	nextIndex uint64

	shuttingDown atomic.Bool

	// LogDroppedSends, when true, prints a line whenever Send targets a
	// PID with no live process (spec.md §9 open question; default off so
	// normal operation is silent).
	LogDroppedSends bool
}

// Config bundles Runtime construction knobs (SPEC_FULL.md §2,
// internal/rtconfig.Config's runtime-facing mirror).
type Config struct {
	Workers           int
	DefaultReductions uint32
	// GCThresholdBytes seeds every spawned process's ActorHeap.GCThreshold
	// (internal/rtconfig.Config.GCThresholdBytes, MESHRT_GC_THRESHOLD). 0
	// keeps ActorHeap's own built-in default.
	GCThresholdBytes int
	// TimerResolution bounds how finely SendAfter and receive-timeouts are
	// honored: any requested duration is rounded up to the next multiple
	// (internal/rtconfig.Config.TimerResolution, MESHRT_TIMER_RESOLUTION).
	// 0 disables rounding.
	TimerResolution time.Duration
}

// DefaultConfig mirrors spec.md §5/§9's reference numbers: one worker per
// logical CPU, 4000 reductions per scheduling slice.
func DefaultConfig() Config {
	return Config{Workers: runtime.GOMAXPROCS(0), DefaultReductions: 4000}
}

// NewRuntime boots a Runtime with cfg.Workers workers (0 means GOMAXPROCS,
// resolved by the caller via rtconfig before reaching here — Runtime
// itself defaults a non-positive count to 1 so it never produces a
// zero-worker, permanently-stuck system).
func NewRuntime(cfg Config) *Runtime {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DefaultReductions == 0 {
		cfg.DefaultReductions = 4000
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	rt := &Runtime{
		processes:     make(map[PID]*process),
		globalQueue:   newRunQueue(),
		defaultRefill: cfg.DefaultReductions,
		names:         newNameRegistry(),
		global:        newNameRegistry(),
		timers:        newTimerService(cfg.TimerResolution),
		gcThreshold:   cfg.GCThresholdBytes,
		eg:            eg,
		egCtx:         egCtx,
		cancel:        cancel,
	}

	rt.workers = make([]*worker, cfg.Workers)
	for i := range rt.workers {
		rt.workers[i] = &worker{id: i, rt: rt, local: newRunQueue()}
	}
	for _, w := range rt.workers {
		w := w
		rt.eg.Go(func() error { return w.run() })
	}
	return rt
}

func (rt *Runtime) allWorkers() []*worker { return rt.workers }

func (rt *Runtime) isShuttingDown() bool { return rt.shuttingDown.Load() }

func (rt *Runtime) lookup(pid PID) (*process, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	p, ok := rt.processes[pid]
	return p, ok
}

// spawn creates and schedules a new process running an actor built by
// produce, placing it round-robin onto a worker's local queue — the only
// point at which a process isn't yet pinned, so it remains stealable
// until its first resume (spec.md §5).
func (rt *Runtime) spawn(produce Producer, priority Priority) PID {
	pid := nextPID()
	p := newProcess(rt, pid, priority, rt.defaultRefill)
	p.produce = produce

	rt.mu.Lock()
	rt.processes[pid] = p
	rt.mu.Unlock()

	idx := atomic.AddUint64(&rt.nextIndex, 1) % uint64(len(rt.workers))
	rt.workers[idx].local.push(p)
	return pid
}

// Spawn is the public entry point used outside of an actor (e.g. from
// cmd/meshrtd's main) to start the first process in the system.
func (rt *Runtime) Spawn(produce Producer, priority Priority) PID {
	return rt.spawn(produce, priority)
}

// SendExternal delivers v to target from outside any running process —
// the bootstrap goroutine's equivalent of ActorContext.Send.
func (rt *Runtime) SendExternal(target PID, v any) {
	rt.deliver(target, PID{}, v)
}

// SendAfter schedules v to be delivered to target after d elapses, usable
// from outside any running process (spec.md §6 "send_after"). It returns
// a reference CancelTimer can use to abort delivery before it fires.
func (rt *Runtime) SendAfter(target PID, v any, d time.Duration) TimerRef {
	return rt.timers.sendAfter(rt, target, v, d)
}

// CancelTimer aborts a pending timer scheduled by SendAfter or a process's
// ActorContext.SendAfter (spec.md §6 "cancel_timer").
func (rt *Runtime) CancelTimer(ref TimerRef) bool {
	return rt.timers.cancel(ref)
}

// reschedule places an already-resumed process back onto its pinned
// worker's local queue.
func (rt *Runtime) reschedule(p *process) {
	p.mu.Lock()
	owner := p.ownerWorker
	p.mu.Unlock()
	if owner < 0 {
		rt.globalQueue.push(p)
		return
	}
	rt.workers[owner].local.push(p)
}

// runProcessLoop is the process's own persistent goroutine. It blocks on
// resumeCh for its turn, then processes exactly one dequeued message (or
// yields immediately if the mailbox is empty) before yielding back,
// modeling corosensei's resume()/suspend() handshake without unsafe
// stack-switching (SPEC_FULL.md §4).
func (rt *Runtime) runProcessLoop(p *process) {
	actorInst := p.produce()

	p.ctx = &actorContext{p: p, rt: rt}

	defer func() {
		reason := ExitNormal
		if r := recover(); r != nil {
			if es, ok := r.(exitSignal); ok {
				reason = es.reason
			} else {
				reason = ExitError(fmt.Sprint(r))
			}
		}
		rt.finalizeExit(p, actorInst, reason)
		p.yieldCh <- yieldSignal{done: true}
	}()

	if init, ok := actorInst.(Initializer); ok {
		// Init gets its own resume/yield turn, symmetric with how the main
		// loop below brackets Receive: consume the worker's resume before
		// running it and send exactly one yield after it returns. Without
		// this, an Init that blocks in ctx.Receive() (a legitimate pattern
		// for "wait for a ready signal before the main loop starts") would
		// consume an extra resumeCh internally without a matching yieldCh,
		// deadlocking the worker that's still waiting on this turn's yield.
		<-p.resumeCh
		init.Init(p.ctx)
		p.yieldCh <- yieldSignal{}
	}

	for {
		<-p.resumeCh

		msg, ok := p.mailbox.TryReceive(MatchAny)
		if !ok {
			p.setState(StateWaiting)
			p.yieldCh <- yieldSignal{}
			continue
		}

		if msg.TypeTag() == TypeTag(killSignal{}) {
			panic(exitSignal{reason: ExitKilled})
		}
		if msg.TypeTag() == TypeTag(shutdownSignal{}) {
			panic(exitSignal{reason: ExitShutdown})
		}
		if msg.TypeTag() == TypeTag(forcedExit{}) {
			var fe forcedExit
			if Decode(msg.Buffer, &fe) == nil {
				panic(exitSignal{reason: fe.Reason})
			}
			panic(exitSignal{reason: ExitKilled})
		}

		p.ctx.current = msg
		p.ctx.sender = msg.Sender
		actorInst.Receive(p.ctx)

		if p.decrementReductions() {
			p.refillReductions()
		}
		p.yieldCh <- yieldSignal{}
	}
}

// yieldProcess is called from ActorContext.ReductionCheck when a
// process's budget is exhausted mid-Receive: it hands the scheduling turn
// back to the worker and blocks until resumed again.
func (rt *Runtime) yieldProcess(p *process) {
	p.refillReductions()
	p.setState(StateReady)
	p.yieldCh <- yieldSignal{}
	<-p.resumeCh
	p.setState(StateRunning)
}

// selectiveReceive implements ActorContext.Receive: try an immediate
// match, and if none is queued, yield the worker turn and block (across
// possibly several resumes) until a match arrives or timeout elapses.
// Per spec, timeout == 0 returns the timeout-arm value immediately if
// nothing already matched; timeout < 0 waits forever; timeout > 0 waits up
// to that duration.
func (rt *Runtime) selectiveReceive(p *process, timeout time.Duration, matches []Match) (Message, bool) {
	if msg, ok := p.mailbox.TryReceive(matches...); ok {
		return msg, true
	}

	if timeout == 0 {
		return Message{}, false
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(rt.timers.round(timeout))
		defer t.Stop()
		deadline = t.C
	}

	for {
		p.setState(StateWaiting)
		p.yieldCh <- yieldSignal{}

		select {
		case <-p.resumeCh:
			p.setState(StateRunning)
			if msg, ok := p.mailbox.TryReceive(matches...); ok {
				return msg, true
			}
		case <-deadline:
			return Message{}, false
		}
	}
}

// deliver encodes v, deep-copies it into target's heap, and pushes it
// onto target's mailbox, waking the process if it was waiting.
func (rt *Runtime) deliver(target, sender PID, v any) {
	buf, err := Encode(v)
	if err != nil {
		if rt.LogDroppedSends {
			fmt.Printf("actor: dropping send to %s: encode error: %v\n", target, err)
		}
		return
	}
	rt.deliverBuffer(target, sender, buf)
}

// deliverRaw is used for runtime-internal messages (Down, Exit). It takes
// the same encode-and-copy path as deliver.
func (rt *Runtime) deliverRaw(target, sender PID, v any) {
	rt.deliver(target, sender, v)
}

func (rt *Runtime) deliverBuffer(target, sender PID, buf MessageBuffer) {
	p, ok := rt.lookup(target)
	if !ok {
		if rt.LogDroppedSends {
			fmt.Printf("actor: dropping send to %s: no such process\n", target)
		}
		return
	}
	p.mu.Lock()
	if p.state == StateExited {
		p.mu.Unlock()
		if rt.LogDroppedSends {
			fmt.Printf("actor: dropping send to %s: process exited\n", target)
		}
		return
	}
	wasWaiting := p.state == StateWaiting
	p.mu.Unlock()

	copied := buf.DeepCopyToHeap(p.heap)
	p.mailbox.Push(Message{Sender: sender, Buffer: MessageBuffer{Data: copied, TypeTag: buf.TypeTag}})

	if wasWaiting {
		rt.wake(p)
	}
}

// wake moves a StateWaiting process back onto its pinned queue so a
// worker picks it up and its blocked resumeCh read proceeds.
func (rt *Runtime) wake(p *process) {
	p.mu.Lock()
	if p.state != StateWaiting {
		p.mu.Unlock()
		return
	}
	p.state = StateReady
	p.mu.Unlock()
	rt.reschedule(p)
}

// forcedExit is the mailbox message used to terminate a process from
// outside its own goroutine (link cascade, supervisor shutdown budget
// exceeded): runProcessLoop recognizes it ahead of the actor's own
// Receive and panics with exitSignal, so finalizeExit remains the single
// place exit propagation happens regardless of whether a process exited
// on its own or was forced.
type forcedExit struct {
	Reason ExitReason
}

// exitProcess forces p to terminate with reason by injecting a
// forcedExit message into its mailbox, waking it if necessary. Actual
// state transition and exit propagation happen once p's own goroutine
// processes that message and unwinds through finalizeExit.
func (rt *Runtime) exitProcess(p *process, reason ExitReason) {
	if p.getState() == StateExited {
		return
	}
	rt.deliver(p.pid, PID{}, forcedExit{Reason: reason})
}

// finalizeExit runs once, from inside the process's own goroutine, right
// before it returns. It marks the PCB exited (markExit is idempotent),
// invokes the actor's Terminator hook, and, only if this call was the one
// that marked the exit, propagates DOWN/Exit to watchers and links and
// releases registered names. It then resets the heap and drops the
// process from the runtime.
func (rt *Runtime) finalizeExit(p *process, actorInst Actor, reason ExitReason) {
	first := p.markExit(reason)
	if term, ok := actorInst.(Terminator); ok {
		func() {
			defer func() { recover() }()
			term.Terminate(reason)
		}()
	}
	if first {
		rt.propagateExit(p, reason)
	}
	p.heap.Reset()

	rt.mu.Lock()
	delete(rt.processes, p.pid)
	rt.mu.Unlock()
}

// Shutdown stops accepting new scheduling turns and waits (up to timeout)
// for every worker goroutine to drain, the same two-phase "signal then
// wait" shape as bollywood's Engine.Shutdown.
func (rt *Runtime) Shutdown(timeout time.Duration) error {
	if !rt.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	rt.globalQueue.close()
	for _, w := range rt.workers {
		w.local.close()
	}
	rt.cancel()

	done := make(chan error, 1)
	go func() { done <- rt.eg.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("actor: shutdown timed out after %s", timeout)
	}
}

// Whereis resolves a globally registered name (spec.md §4.7's global
// registry, as opposed to the process-local names ActorContext.Register
// binds into rt.names).
func (rt *Runtime) Whereis(name string) (PID, bool) { return rt.global.Whereis(name) }

// RegisterGlobal binds name to pid in the global registry, recording the
// binding on pid's own PCB so propagateExit releases it on exit the same
// way it releases ActorContext.Register's process-local names (spec.md
// §4.7: the two registries share the cleanup-on-exit behavior).
func (rt *Runtime) RegisterGlobal(name string, pid PID) error {
	if err := rt.global.Register(name, pid); err != nil {
		return err
	}
	if p, ok := rt.lookup(pid); ok {
		p.mu.Lock()
		p.registeredNames = append(p.registeredNames, registeredName{registry: rt.global, name: name})
		p.mu.Unlock()
	}
	return nil
}

// WorkerStats is a point-in-time snapshot of one worker's local queue
// depth, for dashboard/introspection use (cmd/meshrt-top).
type WorkerStats struct {
	ID       int
	QueueLen int
}

// Stats is a point-in-time snapshot of the whole runtime: total process
// count and each worker's local queue depth.
type Stats struct {
	Processes int
	GlobalLen int
	Workers   []WorkerStats
}

// Stats snapshots the runtime for display. It takes rt.mu briefly and is
// safe to call from any goroutine, including one outside the actor model
// entirely (a terminal dashboard polling on a ticker).
func (rt *Runtime) Stats() Stats {
	rt.mu.RLock()
	processes := len(rt.processes)
	rt.mu.RUnlock()

	workers := make([]WorkerStats, len(rt.workers))
	for i, w := range rt.workers {
		workers[i] = WorkerStats{ID: w.id, QueueLen: w.local.len()}
	}
	return Stats{
		Processes: processes,
		GlobalLen: rt.globalQueue.len(),
		Workers:   workers,
	}
}
