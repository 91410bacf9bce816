// Grounded on server/websocket.go's connection-tracking Server and
// pongoClient/main.go's websocket.Dial client loop for the transport
// shape. spec.md §4.8's "remote-spawn variant" and the original runtime's
// node.rs (original_source) are both best-effort: a node that can't be
// reached shouldn't wedge the caller retrying forever, so outbound
// connect attempts are wrapped in github.com/sony/gobreaker (also named
// in the survey as a fit for any "maybe-down remote peer" concern — see
// SPEC_FULL.md's domain stack section).
package actor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/websocket"
)

// remoteMessage is the wire envelope exchanged between nodes: a local
// MessageBuffer plus addressing information, JSON-framed the same way
// pongoClient encodes its DirectionMessage (the binary MessageBuffer
// payload itself still carries the real actor wire format from codec.go).
type remoteMessage struct {
	TargetPID uint64 `json:"target_pid"`
	SenderPID uint64 `json:"sender_pid"`
	TypeTag   uint64 `json:"type_tag"`
	Data      []byte `json:"data"`
}

// remoteSpawnRequest asks a node to spawn a named, registered function —
// Go can't ship a function pointer across the wire, so the remote side
// must have already registered fnName as a Producer via RegisterRemoteFn.
type remoteSpawnRequest struct {
	FnName    string `json:"fn_name"`
	Args      []byte `json:"args"`
	ReplyAddr string `json:"reply_addr"`
}

// remoteSpawnReply carries the freshly minted PID back to the node that
// asked for a remote spawn, addressed by the raw PID value since a PID
// minted on another node isn't otherwise locally meaningful.
type remoteSpawnReply struct {
	FnName string `json:"fn_name"`
	PID    uint64 `json:"pid"`
	Err    string `json:"err,omitempty"`
}

// envelopeKind discriminates the three frame shapes a node exchanges with
// its peers over one websocket connection. Frames are plain JSON
// envelopes: they carry no magic number, version, or source-node header.
type envelopeKind string

const (
	envelopeSend       envelopeKind = "send"
	envelopeSpawn      envelopeKind = "spawn"
	envelopeSpawnReply envelopeKind = "spawn_reply"
)

// envelope is the outer frame every node-to-node write wraps its payload
// in, so Handler can tell a remoteMessage apart from a remoteSpawnRequest
// on the same connection.
type envelope struct {
	Kind    envelopeKind        `json:"kind"`
	Message *remoteMessage      `json:"message,omitempty"`
	Spawn   *remoteSpawnRequest `json:"spawn,omitempty"`
	Reply   *remoteSpawnReply   `json:"reply,omitempty"`
}

// Node is a cross-node endpoint: it accepts inbound websocket connections
// carrying remoteMessage envelopes for local delivery, and maintains
// best-effort outbound connections (each behind its own circuit breaker)
// to peer nodes for remote send and remote spawn.
type Node struct {
	rt   *Runtime
	name string

	mu        sync.Mutex
	peers     map[string]*websocket.Conn
	breakers  map[string]*gobreaker.CircuitBreaker
	remoteFns map[string]Producer
}

// NewNode creates a cross-node endpoint bound to rt, identified by name
// (e.g. "worker@10.0.0.2:9000").
func NewNode(rt *Runtime, name string) *Node {
	return &Node{
		rt:        rt,
		name:      name,
		peers:     make(map[string]*websocket.Conn),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		remoteFns: make(map[string]Producer),
	}
}

// RegisterRemoteFn makes produce available to remote-spawn requests naming
// fnName, the Go analogue of the original runtime's exported extern "C"
// spawn functions.
func (n *Node) RegisterRemoteFn(fnName string, produce Producer) {
	n.mu.Lock()
	n.remoteFns[fnName] = produce
	n.mu.Unlock()
}

// Handler is the websocket.Handler for inbound connections, wired into an
// http.Server the same way server/websocket.go's Server is.
func (n *Node) Handler(ws *websocket.Conn) {
	defer ws.Close()
	for {
		var env envelope
		if err := websocket.JSON.Receive(ws, &env); err != nil {
			return
		}
		switch env.Kind {
		case envelopeSend:
			if env.Message == nil {
				continue
			}
			msg := env.Message
			n.rt.deliverBuffer(
				PID{id: msg.TargetPID},
				PID{id: msg.SenderPID},
				MessageBuffer{Data: msg.Data, TypeTag: msg.TypeTag},
			)
		case envelopeSpawn:
			if env.Spawn != nil {
				n.handleRemoteSpawn(ws, env.Spawn)
			}
		case envelopeSpawnReply:
			// Spawn replies arriving on an inbound connection are
			// ignored. The dialing side never reads its outbound
			// connections either, so no spawn reply reaches Spawn's
			// caller in this best-effort transport.
		}
	}
}

// handleRemoteSpawn looks up the requested Producer by name and starts it
// locally, writing a remoteSpawnReply with the new PID (or an error)
// back over the same connection.
func (n *Node) handleRemoteSpawn(ws *websocket.Conn, req *remoteSpawnRequest) {
	n.mu.Lock()
	produce, ok := n.remoteFns[req.FnName]
	n.mu.Unlock()

	reply := remoteSpawnReply{FnName: req.FnName}
	if !ok {
		reply.Err = fmt.Sprintf("actor: no remote function registered as %q", req.FnName)
	} else {
		pid := n.rt.spawn(produce, PriorityNormal)
		reply.PID = pid.Uint64()
	}
	_ = websocket.JSON.Send(ws, envelope{Kind: envelopeSpawnReply, Reply: &reply})
}

func (n *Node) breaker(addr string) *gobreaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.breakers[addr]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    addr,
		Timeout: 30 * time.Second,
	})
	n.breakers[addr] = b
	return b
}

func (n *Node) connect(addr string) (*websocket.Conn, error) {
	n.mu.Lock()
	if conn, ok := n.peers[addr]; ok {
		n.mu.Unlock()
		return conn, nil
	}
	n.mu.Unlock()

	result, err := n.breaker(addr).Execute(func() (any, error) {
		return websocket.Dial(fmt.Sprintf("ws://%s/meshrt", addr), "", "http://localhost/")
	})
	if err != nil {
		return nil, err
	}
	conn := result.(*websocket.Conn)
	n.mu.Lock()
	n.peers[addr] = conn
	n.mu.Unlock()
	return conn, nil
}

// Send delivers v to target on the remote node reachable at addr,
// dropping the send (best-effort, per spec.md §4.8's remote-spawn
// variant) if the circuit breaker is open or the connection fails.
func (n *Node) Send(addr string, target, sender PID, v any) error {
	buf, err := Encode(v)
	if err != nil {
		return err
	}
	conn, err := n.connect(addr)
	if err != nil {
		return err
	}
	msg := remoteMessage{
		TargetPID: target.id,
		SenderPID: sender.id,
		TypeTag:   buf.TypeTag,
		Data:      buf.Data,
	}
	return websocket.JSON.Send(conn, envelope{Kind: envelopeSend, Message: &msg})
}

// Spawn asks the node at addr to start fnName, returning once the request
// has been sent. args is JSON-encoded into the request, but the receiving
// node's handleRemoteSpawn does not use it. No PID comes back: the remote
// node writes a remoteSpawnReply on the connection, and this node does not
// read its outbound connections.
func (n *Node) Spawn(addr, fnName string, args any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	conn, err := n.connect(addr)
	if err != nil {
		return err
	}
	req := remoteSpawnRequest{FnName: fnName, Args: payload, ReplyAddr: n.name}
	return websocket.JSON.Send(conn, envelope{Kind: envelopeSpawn, Spawn: &req})
}
