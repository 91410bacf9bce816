// Grounded on original_source/crates/snow-rt/src/actor/mailbox.rs: a
// Mutex<VecDeque<Message>> with push/pop, plus vendor/github.com/lguibr/
// pongo/bollywood's pattern of an unbounded buffered channel per actor for
// the non-selective case. Selective receive (spec.md §4.3: "scan in arrival
// order, remove the first match, leave the rest in their original relative
// order") has no equivalent in bollywood, which only supports FIFO inbound
// channels; it's built here directly off the Rust sibling's scan-and-splice
// approach.
package actor

import "sync"

// mailbox is a process's inbound message queue: thread-safe FIFO push, with
// a scan-based Receive for selective matching.
type mailbox struct {
	mu       sync.Mutex
	messages []Message
	notify   chan struct{} // signaled (non-blocking) whenever a message arrives
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// Push enqueues a message at the tail, preserving arrival order.
func (mb *mailbox) Push(msg Message) {
	mb.mu.Lock()
	mb.messages = append(mb.messages, msg)
	mb.mu.Unlock()
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of queued messages.
func (mb *mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}

// Match is a selective-receive predicate: given a message, report whether it
// satisfies this clause.
type Match func(msg Message) bool

// MatchAny accepts any message — equivalent to a plain FIFO receive.
func MatchAny(Message) bool { return true }

// MatchType accepts any message whose type tag equals the tag of a zero
// value of T.
func MatchType[T any]() Match {
	var zero T
	tag := TypeTag(zero)
	return func(msg Message) bool { return msg.TypeTag() == tag }
}

// TryReceive scans the mailbox in arrival order for the first message
// matching any of the given clauses, removes it (preserving the relative
// order of everything left behind), and returns it. ok is false if nothing
// currently queued matches.
func (mb *mailbox) TryReceive(matches ...Match) (Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, msg := range mb.messages {
		for _, m := range matches {
			if m(msg) {
				mb.messages = append(mb.messages[:i:i], mb.messages[i+1:]...)
				return msg, true
			}
		}
	}
	return Message{}, false
}

// waitChan returns the channel a waiter can select on to be woken when a new
// message is pushed. The channel may fire spuriously (e.g. for a message
// that doesn't match a pending selective receive); callers must re-scan with
// TryReceive after waking.
func (mb *mailbox) waitChan() <-chan struct{} { return mb.notify }

// Drain removes and returns every currently queued message, in arrival
// order. The runtime does not call it on termination: messages still queued
// when a process exits are discarded along with the process.
func (mb *mailbox) Drain() []Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	out := mb.messages
	mb.messages = nil
	return out
}
