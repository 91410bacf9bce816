// Grounded on vendor/github.com/lguibr/pongo/bollywood/process.go (the PCB's
// run loop, Started/Stopping/Stopped lifecycle, panic recovery at the actor
// boundary) and original_source/crates/snow-rt/src/actor/process.go's Rust
// sibling (ProcessId, ProcessState, ExitReason, Priority, DEFAULT_REDUCTIONS).
package actor

import (
	"fmt"
	"sync"
)

// Priority is the scheduling priority of a process. Priorities affect
// selection order between run queues, never preemption.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// PriorityFromByte mirrors the ABI convention: 0 = High, 2 = Low, anything
// else (including the default 1) = Normal.
func PriorityFromByte(b byte) Priority {
	switch b {
	case 0:
		return PriorityHigh
	case 2:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ProcessState is the execution state of a process.
type ProcessState int

const (
	StateReady ProcessState = iota
	StateRunning
	StateWaiting
	StateExited
)

func (s ProcessState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitReason describes why a process terminated. The zero value equals
// ExitNormal; use ExitNormal/ExitKilled/ExitShutdown or construct
// ExitError/ExitLinked.
type ExitReason struct {
	Kind   exitKind
	ErrMsg string
	From   PID
	Cause  *ExitReason
}

type exitKind int

const (
	exitNormal exitKind = iota
	exitError
	exitKilled
	exitLinked
	exitShutdown
)

// ExitNormal is the reason for an actor returning from its entry function.
var ExitNormal = ExitReason{Kind: exitNormal}

// ExitKilled is the reason for a forced, non-interceptable kill.
var ExitKilled = ExitReason{Kind: exitKilled}

// ExitShutdown is used by supervisors for ordered shutdown and for a
// supervisor exhausting its own restart budget (spec.md §4.8 step 2).
var ExitShutdown = ExitReason{Kind: exitShutdown}

// ExitError constructs a user-error exit reason carrying a message, as
// produced by a recovered panic inside Actor.Receive.
func ExitError(message string) ExitReason {
	return ExitReason{Kind: exitError, ErrMsg: message}
}

// ExitLinked constructs the exit reason delivered to a process cascading
// the exit of a linked peer.
func ExitLinked(from PID, cause ExitReason) ExitReason {
	return ExitReason{Kind: exitLinked, From: from, Cause: &cause}
}

// IsNormal reports whether the reason is ExitNormal (or a Shutdown, which
// restart-strategy decisions treat the same way as Normal; see IsAbnormal).
func (r ExitReason) IsNormal() bool {
	return r.Kind == exitNormal || r.Kind == exitShutdown
}

// IsAbnormal is the complement of IsNormal, used by Transient restart
// decisions (spec.md §4.8 step 1).
func (r ExitReason) IsAbnormal() bool { return !r.IsNormal() }

func (r ExitReason) Error() string {
	switch r.Kind {
	case exitNormal:
		return "normal"
	case exitKilled:
		return "killed"
	case exitShutdown:
		return "shutdown"
	case exitLinked:
		return fmt.Sprintf("linked(%s, %s)", r.From, r.Cause.Error())
	default:
		return r.ErrMsg
	}
}

func (r ExitReason) String() string { return r.Error() }

// process is the Process Control Block: one per actor. All mutable fields
// are protected by mu; the owning worker holds no long-lived lock across a
// coroutine resume (spec.md §4.1, §5 "Shared-resource policy").
type process struct {
	mu sync.Mutex

	pid      PID
	state    ProcessState
	priority Priority

	reductions    uint32
	defaultRefill uint32

	mailbox *mailbox
	heap    *ActorHeap
	produce Producer

	links    map[PID]struct{}
	monitors map[monitorRef]PID            // refs this process holds, watching others
	watchers map[PID]map[monitorRef]struct{} // PIDs watching this process, by ref

	trapExits bool

	terminateCallback func(reason ExitReason)
	registeredNames   []registeredName

	exitReason  *ExitReason
	neverResumed bool // true until the owning worker's first resume
	ownerWorker  int  // index of the worker this process is pinned to, once resumed

	resumeCh chan struct{}
	yieldCh  chan yieldSignal

	ctx *actorContext

	rt *Runtime
}

type registeredName struct {
	registry *nameRegistry
	name     string
}

type yieldSignal struct {
	done bool // true if the coroutine returned/exited rather than yielded
}

func newProcess(rt *Runtime, pid PID, priority Priority, refill uint32) *process {
	heap := NewActorHeap()
	if rt.gcThreshold > 0 {
		heap.GCThreshold = rt.gcThreshold
	}
	return &process{
		pid:           pid,
		state:         StateReady,
		priority:      priority,
		reductions:    refill,
		defaultRefill: refill,
		mailbox:       newMailbox(),
		heap:          heap,
		links:         make(map[PID]struct{}),
		monitors:      make(map[monitorRef]PID),
		watchers:      make(map[PID]map[monitorRef]struct{}),
		neverResumed:  true,
		ownerWorker:   -1,
		resumeCh:      make(chan struct{}),
		yieldCh:       make(chan yieldSignal, 1),
		rt:            rt,
	}
}

// setState transitions the process to a new state under lock.
func (p *process) setState(s ProcessState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *process) getState() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// decrementReductions consumes one reduction and reports whether the
// process has run out (and must yield at the next safe point).
func (p *process) decrementReductions() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reductions == 0 {
		return true
	}
	p.reductions--
	return p.reductions == 0
}

func (p *process) refillReductions() {
	p.mu.Lock()
	p.reductions = p.defaultRefill
	p.mu.Unlock()
}

// markExit transitions the process to Exited(reason), idempotently
// (spec.md §4.1 invariant (ii)).
func (p *process) markExit(reason ExitReason) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateExited {
		return false
	}
	p.state = StateExited
	p.exitReason = &reason
	return true
}

func (p *process) getExitReason() (ExitReason, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitReason == nil {
		return ExitReason{}, false
	}
	return *p.exitReason, true
}

func (p *process) addLink(peer PID) {
	p.mu.Lock()
	p.links[peer] = struct{}{}
	p.mu.Unlock()
}

func (p *process) removeLink(peer PID) {
	p.mu.Lock()
	delete(p.links, peer)
	p.mu.Unlock()
}

func (p *process) linkedPeers() []PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PID, 0, len(p.links))
	for peer := range p.links {
		out = append(out, peer)
	}
	return out
}

func (p *process) setTrapExits(trap bool) {
	p.mu.Lock()
	p.trapExits = trap
	p.mu.Unlock()
}

func (p *process) trapsExits() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trapExits
}

func (p *process) setTerminateCallback(cb func(reason ExitReason)) {
	p.mu.Lock()
	p.terminateCallback = cb
	p.mu.Unlock()
}
