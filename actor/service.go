// spec.md §4.4's synchronous call/reply layer: sugar over an async
// Send plus a selective receive keyed on a request id. A request is a
// CallRequest{RequestID, Payload} sent through the ordinary codec; the
// caller's PID is not part of the payload but travels as the message's
// Sender, so there is no "[u64 type_tag][u64 caller_pid][payload]"
// envelope on the wire. Grounded on original_source/crates/snow-rt's
// service module for the request/reply envelope shape; bollywood has no
// synchronous call primitive to ground the scheduling half against, so
// the "call from outside any actor" path below is built from scratch
// using an ephemeral collector process rather than a raw goroutine
// spin-wait, since every blocking wait in this runtime already goes
// through a process's resume/yield handshake.
package actor

import (
	"fmt"
	"sync/atomic"
	"time"
)

var callRequestCounter uint64

// CallRequest is the envelope a Call sends to the target; the target's
// Receive is expected to answer with a CallReply carrying the same
// RequestID.
type CallRequest struct {
	RequestID uint64
	Payload   MessageBuffer
}

// CallReply is the envelope a service actor sends back in response to a
// CallRequest.
type CallReply struct {
	RequestID uint64
	Payload   MessageBuffer
	Err       string
}

// ErrCallTimeout is returned by Call when no matching CallReply arrives
// before the deadline.
type ErrCallTimeout struct{ Target PID }

func (e ErrCallTimeout) Error() string {
	return fmt.Sprintf("actor: call to %s timed out", e.Target)
}

// Call sends req to target and blocks the calling process (via the normal
// selective-receive handshake, so the worker is freed to run other
// processes meanwhile) until a matching CallReply arrives or timeout
// elapses.
func Call(ctx ActorContext, target PID, req any, timeout time.Duration) (Message, error) {
	buf, err := Encode(req)
	if err != nil {
		return Message{}, err
	}
	id := atomic.AddUint64(&callRequestCounter, 1)
	ctx.Send(target, CallRequest{RequestID: id, Payload: buf})

	match := func(msg Message) bool {
		if msg.TypeTag() != TypeTag(CallReply{}) {
			return false
		}
		var reply CallReply
		if Decode(msg.Buffer, &reply) != nil {
			return false
		}
		return reply.RequestID == id
	}

	msg, ok := ctx.Receive(timeout, match)
	if !ok {
		return Message{}, ErrCallTimeout{Target: target}
	}
	var reply CallReply
	if err := Decode(msg.Buffer, &reply); err != nil {
		return Message{}, err
	}
	if reply.Err != "" {
		return Message{}, fmt.Errorf("actor: call to %s failed: %s", target, reply.Err)
	}
	return Message{Sender: target, Buffer: reply.Payload}, nil
}

// Reply answers a CallRequest currently being processed by ctx's actor,
// sending the response back to the original caller.
func Reply(ctx ActorContext, req CallRequest, resp any) {
	buf, err := Encode(resp)
	if err != nil {
		ctx.Send(ctx.Sender(), CallReply{RequestID: req.RequestID, Err: err.Error()})
		return
	}
	ctx.Send(ctx.Sender(), CallReply{RequestID: req.RequestID, Payload: buf})
}

// collectorActor is the ephemeral, single-message actor CallExternal
// spawns to stand in for a caller that isn't itself a running process.
type collectorActor struct {
	result chan<- Message
}

func (c *collectorActor) Receive(ctx ActorContext) {
	c.result <- ctx.Message()
	ctx.Exit(ExitNormal)
}

// CallExternal performs a Call from outside any running process (e.g. the
// bootstrap goroutine in cmd/meshrtd, or a test): it spawns a one-shot
// collector process to serve as the reply target, since the reply
// protocol always addresses a PID.
func (rt *Runtime) CallExternal(target PID, req any, timeout time.Duration) (Message, error) {
	buf, err := Encode(req)
	if err != nil {
		return Message{}, err
	}
	id := atomic.AddUint64(&callRequestCounter, 1)

	resultCh := make(chan Message, 1)
	collector := rt.spawn(func() Actor { return &collectorActor{result: resultCh} }, PriorityNormal)
	defer func() {
		if p, ok := rt.lookup(collector); ok {
			rt.exitProcess(p, ExitShutdown)
		}
	}()

	rt.deliver(target, collector, CallRequest{RequestID: id, Payload: buf})

	select {
	case msg := <-resultCh:
		var reply CallReply
		if err := Decode(msg.Buffer, &reply); err != nil {
			return Message{}, err
		}
		if reply.RequestID != id {
			return Message{}, fmt.Errorf("actor: call reply id mismatch")
		}
		if reply.Err != "" {
			return Message{}, fmt.Errorf("actor: call to %s failed: %s", target, reply.Err)
		}
		return Message{Sender: target, Buffer: reply.Payload}, nil
	case <-time.After(timeout):
		return Message{}, ErrCallTimeout{Target: target}
	}
}

