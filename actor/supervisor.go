// Built from spec.md §4.8, since original_source's
// crates/snow-rt/src/actor/supervisor.rs is an empty module stub (the
// Rust runtime left supervision to be implemented later); child_spec.rs
// is the only grounded piece on the Rust side (see childspec.go). Shaped
// as an ordinary Actor — a supervisor is itself a process that links its
// children and reacts to their Exit messages — the same "actor
// implemented in terms of the same primitives as everything else" idiom
// vendor/github.com/lguibr/pongo/bollywood uses for its system actors.
package actor

import (
	"fmt"
	"time"
)

// SupervisorSpec configures a supervisor actor: its children, restart
// strategy, and restart budget (spec.md §4.8: "max_restarts over
// max_seconds window").
type SupervisorSpec struct {
	Children    []ChildSpec
	Strategy    Strategy
	MaxRestarts int
	MaxSeconds  time.Duration
}

// Supervisor is the Actor implementation that runs a SupervisorSpec.
type Supervisor struct {
	spec     SupervisorSpec
	children []*childState
	restarts []time.Time
	nextTmpl int
}

// NewSupervisor returns a Producer that builds a fresh Supervisor for
// spec, suitable for passing to Runtime.Spawn/ActorContext.Spawn.
func NewSupervisor(spec SupervisorSpec) Producer {
	return func() Actor {
		return &Supervisor{spec: spec}
	}
}

func (s *Supervisor) Init(ctx ActorContext) {
	ctx.TrapExits(true)
	for i := range s.spec.Children {
		s.startChild(ctx, i)
	}
}

func (s *Supervisor) startChild(ctx ActorContext, idx int) {
	var spec ChildSpec
	if idx < len(s.spec.Children) {
		spec = s.spec.Children[idx]
	} else {
		// A dynamic child added by StartChild: restart it from its own spec.
		spec = s.children[idx].spec
	}
	for len(s.children) <= idx {
		s.children = append(s.children, nil)
	}
	if spec.Node != nil {
		_ = spec.Node.Spawn(spec.RemoteAddr, spec.RemoteFn, spec.RemoteArgs)
		s.children[idx] = &childState{spec: spec, running: true, remote: true}
		return
	}
	pid := ctx.Spawn(spec.Produce, spec.Priority)
	ctx.Link(pid)
	s.children[idx] = &childState{spec: spec, pid: pid, running: true}
}

// StartChild adds and starts a dynamic child instance under a
// SimpleOneForOne supervisor, templated off spec.Children[0].
func (s *Supervisor) StartChild(ctx ActorContext, args Producer) PID {
	template := s.spec.Children[0]
	s.nextTmpl++
	child := ChildSpec{
		ID:       fmt.Sprintf("%s-%d", template.ID, s.nextTmpl),
		Produce:  args,
		Priority: template.Priority,
		Restart:  template.Restart,
		Shutdown: template.Shutdown,
		Type:     template.Type,
	}
	pid := ctx.Spawn(child.Produce, child.Priority)
	ctx.Link(pid)
	s.children = append(s.children, &childState{spec: child, pid: pid, running: true})
	return pid
}

func (s *Supervisor) indexOf(pid PID) int {
	for i, c := range s.children {
		if c != nil && c.pid == pid {
			return i
		}
	}
	return -1
}

func (s *Supervisor) indexOfID(id string) int {
	for i, c := range s.children {
		if c != nil && c.spec.ID == id {
			return i
		}
	}
	return -1
}

// TerminateChildRequest asks a running Supervisor to shut down and
// permanently drop the child identified by ID, independent of any
// restart strategy — the message form of `terminate_child(sup_pid, id)`.
type TerminateChildRequest struct {
	ID string
}

// TerminateChild shuts the named child down per its ChildSpec's shutdown
// policy and removes it from the supervisor's child list so it is never
// restarted, reporting whether a child with that ID was found running.
// Embedding actors that override Receive (the same pattern StartChild
// expects) may call this directly from their own Receive; Supervisor's
// own Receive also answers TerminateChildRequest for the common case of
// calling a bare Supervisor's PID with no wrapper.
func (s *Supervisor) TerminateChild(ctx ActorContext, id string) bool {
	idx := s.indexOfID(id)
	if idx < 0 || s.children[idx] == nil || !s.children[idx].running {
		return false
	}
	s.shutdownChild(ctx, idx)
	s.children = append(s.children[:idx], s.children[idx+1:]...)
	return true
}

func (s *Supervisor) Receive(ctx ActorContext) {
	switch ctx.Message().TypeTag() {
	case TypeTag(Exit{}):
		var exit Exit
		if ctx.Decode(&exit) == nil {
			s.handleChildExit(ctx, exit.Pid, exit.Reason)
		}
	case TypeTag(TerminateChildRequest{}):
		var req TerminateChildRequest
		if ctx.Decode(&req) == nil {
			s.TerminateChild(ctx, req.ID)
		}
	}
}

func (s *Supervisor) handleChildExit(ctx ActorContext, pid PID, reason ExitReason) {
	idx := s.indexOf(pid)
	if idx < 0 {
		return
	}
	s.children[idx].running = false

	if !s.children[idx].spec.Restart.shouldRestart(reason) {
		if s.children[idx].spec.Restart == Temporary {
			s.children = append(s.children[:idx], s.children[idx+1:]...)
		}
		return
	}

	if s.budgetExceeded() {
		ctx.Exit(ExitShutdown)
		return
	}

	switch s.spec.Strategy {
	case OneForOne, SimpleOneForOne:
		s.startChild(ctx, idx)
	case OneForAll:
		s.terminateAllExcept(ctx, -1)
		for i := range s.spec.Children {
			s.startChild(ctx, i)
		}
	case RestForOne:
		s.terminateFrom(ctx, idx+1)
		for i := idx; i < len(s.spec.Children); i++ {
			s.startChild(ctx, i)
		}
	}
}

// budgetExceeded records the current restart and evicts entries outside
// the MaxSeconds sliding window, reporting whether the window now holds
// more restarts than MaxRestarts allows.
func (s *Supervisor) budgetExceeded() bool {
	now := time.Now()
	s.restarts = append(s.restarts, now)
	cutoff := now.Add(-s.spec.MaxSeconds)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept
	return len(s.restarts) > s.spec.MaxRestarts
}

// terminateAllExcept shuts down every running child except the one at
// keepIdx (-1 means "none kept"), in reverse declaration order.
func (s *Supervisor) terminateAllExcept(ctx ActorContext, keepIdx int) {
	for i := len(s.children) - 1; i >= 0; i-- {
		if i == keepIdx || s.children[i] == nil || !s.children[i].running {
			continue
		}
		s.shutdownChild(ctx, i)
	}
}

func (s *Supervisor) terminateFrom(ctx ActorContext, from int) {
	for i := len(s.children) - 1; i >= from; i-- {
		if s.children[i] == nil || !s.children[i].running {
			continue
		}
		s.shutdownChild(ctx, i)
	}
}

// shutdownChild applies a child's shutdown policy (spec.md §4.8 "ordered
// shutdown"): BrutalKill terminates immediately, Timeout gives the child
// up to its configured duration before force-killing it.
func (s *Supervisor) shutdownChild(ctx ActorContext, idx int) {
	child := s.children[idx]
	if child.remote {
		// No local process to unlink or signal; best-effort remote
		// children are not locally supervised past the initial dispatch.
		child.running = false
		return
	}
	ctx.Unlink(child.pid)
	if child.spec.Shutdown.Brutal {
		ctx.Send(child.pid, killSignal{})
	} else {
		ctx.Send(child.pid, shutdownSignal{})
		time.AfterFunc(child.spec.Shutdown.Timeout, func() {
			ctx.Send(child.pid, killSignal{})
		})
	}
	child.running = false
}

// killSignal and shutdownSignal are runtime-internal control messages;
// runProcessLoop (runtime.go) intercepts them ahead of the actor's own
// Receive and exits the process with ExitKilled / ExitShutdown directly,
// the same way it never hands a supervisor's link-cascade kill to
// Receive either.
type killSignal struct{}
type shutdownSignal struct{}

func (Supervisor) Terminate(reason ExitReason) {}
