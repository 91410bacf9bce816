package actor

// Message is a single entry in an actor's mailbox: a sender PID (the zero
// PID if the sender isn't an actor, e.g. the bootstrap thread) plus the
// serialized payload produced by Encode (spec.md §3 "Message").
type Message struct {
	Sender PID
	Buffer MessageBuffer
}

// TypeTag returns the message's wire-format type tag, used by selective
// receive's match descriptors.
func (m Message) TypeTag() uint64 { return m.Buffer.TypeTag }
