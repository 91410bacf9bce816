// Grounded on vendor/github.com/lguibr/pongo/bollywood/actor.go and
// context.go: an Actor interface with a single Receive(ctx) method, backed
// by a concrete context struct carrying self/sender/message. spec.md §4.1
// and §9 call for an explicit per-call context rather than the original
// Rust runtime's thread-local current_pid/yielder — Go has no per-goroutine
// thread-local storage, and bollywood already models the capability this
// way, so ActorContext below is that interface generalized to cover
// selective receive, linking, monitoring, and the reduction budget.
package actor

import (
	"fmt"
	"time"
)

// Actor is the behavior a spawned process runs. Receive is invoked once per
// dequeued message on the process's own goroutine; Init/Terminate are
// optional lifecycle hooks a concrete Actor type may additionally implement
// by satisfying Initializer / Terminator.
type Actor interface {
	Receive(ctx ActorContext)
}

// Initializer is an optional Actor extension run once before the first
// message is received.
type Initializer interface {
	Init(ctx ActorContext)
}

// Terminator is an optional Actor extension run once after the process has
// exited, receiving its own exit reason (spec.md §4.1 "terminate callback").
type Terminator interface {
	Terminate(reason ExitReason)
}

// Producer constructs a fresh Actor instance; Spawn calls it once per
// process so supervisors can restart a child with clean state.
type Producer func() Actor

// ActorContext is the capability surface handed to Receive. It plays the
// role the original runtime gives a thread-local current process: every
// operation that needs "which process am I" takes it explicitly instead.
type ActorContext interface {
	// Self returns the PID of the process running this Receive call.
	Self() PID
	// Sender returns the PID of the process that sent the current message,
	// or the zero PID if the message didn't come from a tracked actor.
	Sender() PID
	// Message returns the raw payload bytes and type tag of the message
	// currently being processed.
	Message() Message

	// Decode unmarshals the current message's payload into dst (a pointer),
	// per the codec's wire format.
	Decode(dst any) error

	// Send delivers v to target's mailbox, deep-copying it into the
	// target's heap. Sending to an exited or unknown PID is a silent no-op
	// (spec.md §9 open question, resolved in DESIGN.md).
	Send(target PID, v any)

	// Receive performs a one-shot selective receive: if a queued message
	// matches, it is returned immediately. Otherwise, a zero timeout
	// returns (Message{}, false) right away, a negative timeout yields
	// until a matching message arrives no matter how long that takes, and
	// a positive timeout yields until a match arrives or that duration
	// elapses. ok is false on timeout.
	Receive(timeout time.Duration, matches ...Match) (Message, bool)

	// Spawn starts a new child process running an actor built by produce,
	// returning its PID.
	Spawn(produce Producer, priority Priority) PID

	// Link establishes a bidirectional link with peer (spec.md §4.5).
	Link(peer PID)
	// Unlink removes a previously established link.
	Unlink(peer PID)
	// Monitor establishes a unidirectional monitor of target, returning a
	// reference that later identifies the corresponding DOWN message.
	Monitor(target PID) monitorRef
	// Demonitor cancels a previously established monitor.
	Demonitor(ref monitorRef)
	// TrapExits controls whether this process converts peer exits into
	// ordinary EXIT messages instead of cascading its own exit.
	TrapExits(trap bool)

	// Register binds name to this process in the runtime's name registry.
	Register(name string) error
	// Unregister releases a name this process previously bound with
	// Register. A no-op if the name isn't bound to this process.
	Unregister(name string)
	// Whereis looks up a registered name.
	Whereis(name string) (PID, bool)

	// ReductionCheck consumes one reduction and yields the coroutine back
	// to the scheduler if the budget has run out, returning after the
	// process has been rescheduled.
	ReductionCheck()

	// Exit terminates the calling process with the given reason. It never
	// returns control to Receive.
	Exit(reason ExitReason)

	// Sleep suspends the calling process for d, freeing the worker to run
	// other processes meanwhile (spec.md §6 "sleep(ms)").
	Sleep(d time.Duration)
	// SendAfter schedules v to be delivered to target after d elapses,
	// returning a reference CancelTimer can use to abort it first.
	SendAfter(target PID, v any, d time.Duration) TimerRef
	// CancelTimer aborts a pending timer scheduled by SendAfter, reporting
	// whether it was still pending (false if it already fired or was
	// already canceled).
	CancelTimer(ref TimerRef) bool
}

type actorContext struct {
	p       *process
	rt      *Runtime
	current Message
	sender  PID
}

func (c *actorContext) Self() PID        { return c.p.pid }
func (c *actorContext) Sender() PID      { return c.sender }
func (c *actorContext) Message() Message { return c.current }

func (c *actorContext) Decode(dst any) error {
	return Decode(c.current.Buffer, dst)
}

func (c *actorContext) Send(target PID, v any) {
	c.rt.deliver(target, c.p.pid, v)
}

func (c *actorContext) Receive(timeout time.Duration, matches ...Match) (Message, bool) {
	if len(matches) == 0 {
		matches = []Match{MatchAny}
	}
	return c.rt.selectiveReceive(c.p, timeout, matches)
}

func (c *actorContext) Spawn(produce Producer, priority Priority) PID {
	return c.rt.spawn(produce, priority)
}

func (c *actorContext) Link(peer PID)       { c.rt.link(c.p.pid, peer) }
func (c *actorContext) Unlink(peer PID)     { c.rt.unlink(c.p.pid, peer) }
func (c *actorContext) Monitor(target PID) monitorRef {
	return c.rt.monitor(c.p.pid, target)
}
func (c *actorContext) Demonitor(ref monitorRef) { c.rt.demonitor(c.p.pid, ref) }
func (c *actorContext) TrapExits(trap bool)      { c.p.setTrapExits(trap) }

func (c *actorContext) Register(name string) error {
	if err := c.rt.names.Register(name, c.p.pid); err != nil {
		return err
	}
	c.p.mu.Lock()
	c.p.registeredNames = append(c.p.registeredNames, registeredName{registry: c.rt.names, name: name})
	c.p.mu.Unlock()
	return nil
}

func (c *actorContext) Unregister(name string) {
	c.rt.names.Unregister(name)
	c.p.mu.Lock()
	for i, rn := range c.p.registeredNames {
		if rn.registry == c.rt.names && rn.name == name {
			c.p.registeredNames = append(c.p.registeredNames[:i], c.p.registeredNames[i+1:]...)
			break
		}
	}
	c.p.mu.Unlock()
}

func (c *actorContext) Whereis(name string) (PID, bool) {
	return c.rt.names.Whereis(name)
}

func (c *actorContext) ReductionCheck() {
	if c.p.decrementReductions() {
		c.rt.yieldProcess(c.p)
	}
}

func (c *actorContext) Exit(reason ExitReason) {
	c.rt.exitProcess(c.p, reason)
	panic(exitSignal{reason: reason})
}

// sleepWake is the zero-payload message a sleeping process's own SendAfter
// timer delivers to itself to end the sleep.
type sleepWake struct{}

func (c *actorContext) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.rt.timers.sendAfter(c.rt, c.p.pid, sleepWake{}, d)
	c.Receive(-1, MatchType[sleepWake]())
}

func (c *actorContext) SendAfter(target PID, v any, d time.Duration) TimerRef {
	return c.rt.timers.sendAfter(c.rt, target, v, d)
}

func (c *actorContext) CancelTimer(ref TimerRef) bool {
	return c.rt.timers.cancel(ref)
}

// exitSignal unwinds the actor's Receive call stack when Exit is invoked;
// the worker's run loop recovers it the same way it recovers any other
// panic, distinguishing a deliberate exit from an actor bug.
type exitSignal struct {
	reason ExitReason
}

func (e exitSignal) String() string {
	return fmt.Sprintf("actor: exit(%s)", e.reason)
}
