// Grounded on original_source/crates/snow-rt/src/actor/process.rs's
// link/monitor bookkeeping and spec.md §4.5's exit-propagation procedure.
// bollywood has no equivalent (no links, no monitors); this is built
// straight from the Rust sibling, translated into PCB methods plus the
// Runtime-level exit procedure that walks them.
package actor

import "sync/atomic"

// monitorRef uniquely identifies one Monitor call, handed back so the
// caller can later Demonitor it and match it against an incoming DOWN
// message.
type monitorRef uint64

var monitorRefCounter uint64

func nextMonitorRef() monitorRef {
	return monitorRef(atomic.AddUint64(&monitorRefCounter, 1))
}

// Down is the message delivered to a watcher when a monitored process
// exits (spec.md §4.5: "monitor delivers a DOWN message, it does not
// cascade the exit").
type Down struct {
	Ref    monitorRef
	Pid    PID
	Reason ExitReason
}

// Exit is the message delivered to a linked peer that traps exits instead
// of cascading (spec.md §4.5: "if the receiver traps exits, it gets an
// ordinary message instead of dying").
type Exit struct {
	Pid    PID
	Reason ExitReason
}

// link establishes a symmetric link between a and b.
func (rt *Runtime) link(a, b PID) {
	pa, okA := rt.lookup(a)
	pb, okB := rt.lookup(b)
	if !okA || !okB {
		return
	}
	pa.addLink(b)
	pb.addLink(a)
}

// unlink removes a symmetric link between a and b.
func (rt *Runtime) unlink(a, b PID) {
	pa, okA := rt.lookup(a)
	pb, okB := rt.lookup(b)
	if okA {
		pa.removeLink(b)
	}
	if okB {
		pb.removeLink(a)
	}
}

// monitor makes watcher observe target, returning the reference Down
// messages will carry.
func (rt *Runtime) monitor(watcher, target PID) monitorRef {
	ref := nextMonitorRef()
	pt, ok := rt.lookup(target)
	if !ok {
		// Target is already gone: deliver a DOWN immediately, matching
		// spec.md's "monitoring an already-exited process delivers DOWN
		// right away" edge case.
		rt.deliverRaw(watcher, PID{}, Down{Ref: ref, Pid: target, Reason: ExitNormal})
		return ref
	}
	pt.mu.Lock()
	if pt.watchers[watcher] == nil {
		pt.watchers[watcher] = make(map[monitorRef]struct{})
	}
	pt.watchers[watcher][ref] = struct{}{}
	pt.mu.Unlock()

	if pw, ok := rt.lookup(watcher); ok {
		pw.mu.Lock()
		pw.monitors[ref] = target
		pw.mu.Unlock()
	}
	return ref
}

// demonitor cancels a monitor ref held by watcher.
func (rt *Runtime) demonitor(watcher PID, ref monitorRef) {
	pw, ok := rt.lookup(watcher)
	if !ok {
		return
	}
	pw.mu.Lock()
	target, tracked := pw.monitors[ref]
	delete(pw.monitors, ref)
	pw.mu.Unlock()
	if !tracked {
		return
	}
	if pt, ok := rt.lookup(target); ok {
		pt.mu.Lock()
		delete(pt.watchers[watcher], ref)
		pt.mu.Unlock()
	}
}

// propagateExit runs the exit procedure for p once it has terminated:
// notify watchers with DOWN, then handle linked peers: a peer that traps
// exits gets an ordinary Exit message for any reason, and a peer that does
// not is killed with ExitLinked only when the reason is abnormal, per
// spec.md §4.5. Finally, every registered name of p is released.
func (rt *Runtime) propagateExit(p *process, reason ExitReason) {
	p.mu.Lock()
	watchers := make(map[PID][]monitorRef)
	for pid, refs := range p.watchers {
		for ref := range refs {
			watchers[pid] = append(watchers[pid], ref)
		}
	}
	links := make([]PID, 0, len(p.links))
	for peer := range p.links {
		links = append(links, peer)
	}
	names := append([]registeredName(nil), p.registeredNames...)
	p.mu.Unlock()

	for watcher, refs := range watchers {
		for _, ref := range refs {
			rt.deliverRaw(watcher, PID{}, Down{Ref: ref, Pid: p.pid, Reason: reason})
		}
	}

	for _, peer := range links {
		rt.unlink(p.pid, peer)
		peer := peer
		pp, ok := rt.lookup(peer)
		if !ok {
			continue
		}
		if pp.trapsExits() {
			rt.deliverRaw(peer, p.pid, Exit{Pid: p.pid, Reason: reason})
			continue
		}
		if reason.IsAbnormal() {
			rt.exitProcess(pp, ExitLinked(p.pid, reason))
		}
	}

	for _, rn := range names {
		rn.registry.unregisterPID(p.pid)
	}
}
