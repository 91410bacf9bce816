// Ported from original_source/crates/snow-rt/src/actor/child_spec.rs. The
// Rust version's start_fn/start_args_ptr raw-pointer pair (compiled
// function + serialized args) becomes a plain Producer closure here —
// Go already has a GC-tracked, type-safe way to capture a child's start
// arguments, so there's nothing to reconstruct at restart time beyond
// calling the closure again.
package actor

import "time"

// Strategy selects which siblings are affected when one supervised child
// exits abnormally.
type Strategy int

const (
	// OneForOne restarts only the failed child.
	OneForOne Strategy = iota
	// OneForAll terminates and restarts every child when any one fails.
	OneForAll
	// RestForOne terminates and restarts the failed child and every child
	// started after it, in start order.
	RestForOne
	// SimpleOneForOne behaves like OneForOne but for children started
	// dynamically via Supervisor.StartChild from a single template spec.
	SimpleOneForOne
)

// RestartType controls whether a child is restarted after it exits.
type RestartType int

const (
	// Permanent always restarts the child, regardless of exit reason.
	Permanent RestartType = iota
	// Transient restarts the child only on an abnormal exit.
	Transient
	// Temporary never restarts the child; it is removed from supervision.
	Temporary
)

func (rt RestartType) shouldRestart(reason ExitReason) bool {
	switch rt {
	case Permanent:
		return true
	case Transient:
		return reason.IsAbnormal()
	default:
		return false
	}
}

// ShutdownType controls how a child is terminated during ordered
// shutdown.
type ShutdownType struct {
	Brutal  bool
	Timeout time.Duration
}

// BrutalKill terminates the child immediately without waiting.
func BrutalKill() ShutdownType { return ShutdownType{Brutal: true} }

// ShutdownTimeout sends an ExitShutdown signal and waits up to d for the
// child to exit before forcefully killing it.
func ShutdownTimeout(d time.Duration) ShutdownType { return ShutdownType{Timeout: d} }

// DefaultShutdown matches the OTP default of 5 seconds for worker
// children.
func DefaultShutdown() ShutdownType { return ShutdownTimeout(5 * time.Second) }

// ChildType distinguishes a plain worker from a nested supervisor. The
// supervisor records it but does not act on it: shutdown of either kind
// follows the child's ShutdownType alone.
type ChildType int

const (
	Worker ChildType = iota
	SupervisorChild
)

// ChildSpec is the static configuration for one supervised child.
type ChildSpec struct {
	ID       string
	Produce  Producer
	Priority Priority
	Restart  RestartType
	Shutdown ShutdownType
	Type     ChildType

	// Node, when non-nil, makes the supervisor dispatch this child through
	// the cross-node spawn ABI (Node.Spawn) instead of a local ctx.Spawn —
	// spec.md §3's ChildSpec field list and §4.8's remote-spawn variant.
	// RemoteFn must already be registered on the target node via
	// Node.RegisterRemoteFn (Go can't ship Produce's closure across the
	// wire); Produce/Priority are ignored for a remote child.
	Node       *Node
	RemoteAddr string
	RemoteFn   string
	RemoteArgs any
}

// childState is the supervisor's live bookkeeping for one child: its
// spec plus current PID and running flag. remote marks a child dispatched
// via Node.Spawn; its PID stays zero, because Node.Spawn returns no PID and
// the remote node's spawn reply is not read back — such a child is never
// linked or monitored locally, matching the best-effort scope actor/node.go
// documents for cross-node spawn.
type childState struct {
	spec    ChildSpec
	pid     PID
	running bool
	remote  bool
}
