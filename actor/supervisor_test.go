package actor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requirePID drains one PID reported by a reportingWorker, failing the test
// if none arrives in time.
func requirePID(t *testing.T, ch chan PID) PID {
	t.Helper()
	select {
	case pid := <-ch:
		return pid
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for child PID")
		return PID{}
	}
}

type killMsg struct{}

// reportingWorker announces its own PID on spawned every time Init runs
// (including on a supervisor restart), so a test can observe whether a
// child got a fresh PID or kept its old one.
type reportingWorker struct {
	spawned chan PID
}

func (w *reportingWorker) Init(ctx ActorContext) {
	w.spawned <- ctx.Self()
}

func (w *reportingWorker) Receive(ctx ActorContext) {
	if ctx.Message().TypeTag() == TypeTag(killMsg{}) {
		panic("boom")
	}
}

// TestSupervisorOneForOneRestartsOnlyFailedChild is spec.md S6: two
// Permanent children under a one_for_one supervisor; one panics and is
// restarted with a new PID, while the other keeps running untouched.
func TestSupervisorOneForOneRestartsOnlyFailedChild(t *testing.T) {
	rt := testRuntime(t, 2)

	spawned1 := make(chan PID, 4)
	spawned2 := make(chan PID, 4)

	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "w1", Produce: func() Actor { return &reportingWorker{spawned: spawned1} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
			{ID: "w2", Produce: func() Actor { return &reportingWorker{spawned: spawned2} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    OneForOne,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}
	rt.Spawn(NewSupervisor(spec), PriorityNormal)

	w1a := requirePID(t, spawned1)
	w2a := requirePID(t, spawned2)

	rt.SendExternal(w1a, killMsg{})

	w1b := requirePID(t, spawned1)
	assert.NotEqual(t, w1a, w1b, "w1 should have a new PID after restart")

	select {
	case got := <-spawned2:
		t.Fatalf("w2 should not have restarted, got new PID %s", got)
	case <-time.After(100 * time.Millisecond):
	}

	p, ok := rt.lookup(w2a)
	require.True(t, ok)
	assert.NotEqual(t, StateExited, p.getState())
}

// alwaysPanicsOnInit panics as soon as it starts, every time, recording
// each attempt so a test can count restarts.
type alwaysPanicsOnInit struct {
	counter *int32
}

func (a *alwaysPanicsOnInit) Init(ctx ActorContext) {
	atomic.AddInt32(a.counter, 1)
	panic("boom")
}

func (a *alwaysPanicsOnInit) Receive(ctx ActorContext) {}

// TestSupervisorRestartBudgetExceededShutsDown is spec.md S7: a supervisor
// with max_restarts=3/max_seconds=5 whose only Permanent child panics on
// every start is attempted 4 times total before the supervisor gives up
// and exits Shutdown itself.
func TestSupervisorRestartBudgetExceededShutsDown(t *testing.T) {
	rt := testRuntime(t, 2)

	var starts int32
	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "flaky", Produce: func() Actor { return &alwaysPanicsOnInit{counter: &starts} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    OneForOne,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}
	sup := rt.Spawn(NewSupervisor(spec), PriorityNormal)

	downCh := make(chan Down, 1)
	watcher := rt.Spawn(func() Actor { return &downCollector{ch: downCh} }, PriorityNormal)
	rt.monitor(watcher, sup)

	select {
	case d := <-downCh:
		assert.Equal(t, sup, d.Pid)
		assert.Equal(t, ExitShutdown, d.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor never shut down after exceeding its restart budget")
	}

	assert.Equal(t, int32(4), atomic.LoadInt32(&starts), "expected exactly 4 start attempts (initial + 3 restarts) before shutdown")
}

// TestSupervisorOneForAllRestartsEverySibling is spec.md §4.8's one_for_all
// strategy: when any child fails, every child (not just the failed one)
// is torn down and restarted, so all siblings come back with fresh PIDs.
func TestSupervisorOneForAllRestartsEverySibling(t *testing.T) {
	rt := testRuntime(t, 2)

	spawned1 := make(chan PID, 4)
	spawned2 := make(chan PID, 4)

	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "w1", Produce: func() Actor { return &reportingWorker{spawned: spawned1} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
			{ID: "w2", Produce: func() Actor { return &reportingWorker{spawned: spawned2} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    OneForAll,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}
	rt.Spawn(NewSupervisor(spec), PriorityNormal)

	w1a := requirePID(t, spawned1)
	w2a := requirePID(t, spawned2)

	rt.SendExternal(w1a, killMsg{})

	w1b := requirePID(t, spawned1)
	w2b := requirePID(t, spawned2)
	assert.NotEqual(t, w1a, w1b)
	assert.NotEqual(t, w2a, w2b, "w2 should also have been restarted under one_for_all")
}

// TestSupervisorRestForOneRestartsFailedAndLaterSiblings covers
// rest_for_one: children started before the failed one are left alone,
// those started at or after it come back with new PIDs.
func TestSupervisorRestForOneRestartsFailedAndLaterSiblings(t *testing.T) {
	rt := testRuntime(t, 2)

	spawned1 := make(chan PID, 4)
	spawned2 := make(chan PID, 4)
	spawned3 := make(chan PID, 4)

	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "w1", Produce: func() Actor { return &reportingWorker{spawned: spawned1} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
			{ID: "w2", Produce: func() Actor { return &reportingWorker{spawned: spawned2} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
			{ID: "w3", Produce: func() Actor { return &reportingWorker{spawned: spawned3} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    RestForOne,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}
	rt.Spawn(NewSupervisor(spec), PriorityNormal)

	w1a := requirePID(t, spawned1)
	w2a := requirePID(t, spawned2)
	w3a := requirePID(t, spawned3)

	rt.SendExternal(w2a, killMsg{})

	w2b := requirePID(t, spawned2)
	w3b := requirePID(t, spawned3)
	assert.NotEqual(t, w2a, w2b, "w2 (the failed child) should restart")
	assert.NotEqual(t, w3a, w3b, "w3 (started after w2) should also restart")

	select {
	case got := <-spawned1:
		t.Fatalf("w1 (started before the failed child) should not restart, got new PID %s", got)
	case <-time.After(100 * time.Millisecond):
	}
	p, ok := rt.lookup(w1a)
	require.True(t, ok)
	assert.NotEqual(t, StateExited, p.getState())
}

// startChildMsg asks a dynamicSupervisor to start one more instance of its
// template child, exercising Supervisor.StartChild from inside the
// supervisor's own goroutine the way a real caller would.
type startChildMsg struct{}

// dynamicSupervisor embeds Supervisor to pick up its Init/Terminate, while
// adding a Receive case that drives StartChild from a message instead of
// only ever reacting to child Exit notifications.
type dynamicSupervisor struct {
	*Supervisor
	spawned chan PID
}

func (d *dynamicSupervisor) Receive(ctx ActorContext) {
	if ctx.Message().TypeTag() == TypeTag(startChildMsg{}) {
		d.StartChild(ctx, func() Actor { return &reportingWorker{spawned: d.spawned} })
		return
	}
	d.Supervisor.Receive(ctx)
}

// TestSimpleOneForOneStartChildAddsDynamicInstance exercises
// Supervisor.StartChild: a simple_one_for_one supervisor can be asked to
// start additional instances of its template child at runtime.
func TestSimpleOneForOneStartChildAddsDynamicInstance(t *testing.T) {
	rt := testRuntime(t, 2)

	spawned := make(chan PID, 8)
	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "worker", Produce: func() Actor { return &reportingWorker{spawned: spawned} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    SimpleOneForOne,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}

	pid := rt.Spawn(func() Actor {
		return &dynamicSupervisor{Supervisor: &Supervisor{spec: spec}, spawned: spawned}
	}, PriorityNormal)

	first := requirePID(t, spawned)

	rt.SendExternal(pid, startChildMsg{})

	second := requirePID(t, spawned)
	assert.NotEqual(t, first, second)
}

// TestSupervisorTerminateChildStopsAndDropsIt exercises TerminateChild /
// TerminateChildRequest directly against a bare Supervisor PID: the named
// child is killed and, unlike a crash, never comes back, while its sibling
// keeps running untouched.
func TestSupervisorTerminateChildStopsAndDropsIt(t *testing.T) {
	rt := testRuntime(t, 2)

	spawned1 := make(chan PID, 4)
	spawned2 := make(chan PID, 4)

	spec := SupervisorSpec{
		Children: []ChildSpec{
			{ID: "w1", Produce: func() Actor { return &reportingWorker{spawned: spawned1} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
			{ID: "w2", Produce: func() Actor { return &reportingWorker{spawned: spawned2} }, Priority: PriorityNormal, Restart: Permanent, Shutdown: DefaultShutdown()},
		},
		Strategy:    OneForOne,
		MaxRestarts: 3,
		MaxSeconds:  5 * time.Second,
	}
	sup := rt.Spawn(NewSupervisor(spec), PriorityNormal)

	w1a := requirePID(t, spawned1)
	w2a := requirePID(t, spawned2)

	rt.SendExternal(sup, TerminateChildRequest{ID: "w1"})

	require.Eventually(t, func() bool {
		// finalizeExit drops an exited process from the table, so a
		// missing entry also means w1 has exited.
		p, ok := rt.lookup(w1a)
		return !ok || p.getState() == StateExited
	}, 2*time.Second, 10*time.Millisecond, "terminated child never exited")

	select {
	case got := <-spawned1:
		t.Fatalf("w1 should not have restarted after TerminateChild, got new PID %s", got)
	case <-time.After(100 * time.Millisecond):
	}

	p2, ok := rt.lookup(w2a)
	require.True(t, ok)
	assert.NotEqual(t, StateExited, p2.getState())
}
