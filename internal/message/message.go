// Package message defines the tagged envelope nodes use to exchange
// control and data over a Transport.
package message

import (
	"errors"
	"fmt"

	"taskmesh/internal/task"
)

// ErrWrongVariant is returned by a payload accessor invoked on a Message
// of a different Kind.
var ErrWrongVariant = errors.New("message: wrong variant")

// Broadcast is the sentinel receiver value denoting "every registered peer
// except the sender". It is never a valid node id.
const Broadcast = -1

// Kind tags which variant a Message carries.
type Kind int

const (
	LoadUpdate Kind = iota
	TaskTransfer
	TaskRequest
	PeerDiscovery
)

func (k Kind) String() string {
	switch k {
	case LoadUpdate:
		return "LOAD_UPDATE"
	case TaskTransfer:
		return "TASK_TRANSFER"
	case TaskRequest:
		return "TASK_REQUEST"
	case PeerDiscovery:
		return "PEER_DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// Message is an immutable, tagged envelope. Construct one with the
// NewXxx function matching the variant you need; access the
// variant-specific payload with the matching accessor.
type Message struct {
	kind     Kind
	sender   int
	receiver int
	depth    int
	tsk      task.Task
	hasTask  bool
}

// NewLoadUpdate builds a broadcast LOAD_UPDATE carrying the sender's depth.
func NewLoadUpdate(sender, depth int) Message {
	return Message{kind: LoadUpdate, sender: sender, receiver: Broadcast, depth: depth}
}

// NewTaskTransfer builds a TASK_TRANSFER addressed from sender to receiver.
func NewTaskTransfer(sender, receiver int, t task.Task) Message {
	return Message{kind: TaskTransfer, sender: sender, receiver: receiver, tsk: t, hasTask: true}
}

// NewTaskRequest builds a reserved TASK_REQUEST; it has no side effects in
// this implementation.
func NewTaskRequest(sender, receiver int) Message {
	return Message{kind: TaskRequest, sender: sender, receiver: receiver}
}

// NewPeerDiscovery builds a broadcast PEER_DISCOVERY announcing sender.
func NewPeerDiscovery(sender int) Message {
	return Message{kind: PeerDiscovery, sender: sender, receiver: Broadcast}
}

// Kind reports the message's variant.
func (m Message) Kind() Kind { return m.kind }

// Sender reports the originating node id.
func (m Message) Sender() int { return m.sender }

// Receiver reports the addressed node id, or Broadcast.
func (m Message) Receiver() int { return m.receiver }

// Depth returns the payload of a LOAD_UPDATE message.
func (m Message) Depth() (int, error) {
	if m.kind != LoadUpdate {
		return 0, fmt.Errorf("%w: Depth() on %s", ErrWrongVariant, m.kind)
	}
	return m.depth, nil
}

// Task returns the payload of a TASK_TRANSFER message.
func (m Message) Task() (task.Task, error) {
	if m.kind != TaskTransfer || !m.hasTask {
		return task.Task{}, fmt.Errorf("%w: Task() on %s", ErrWrongVariant, m.kind)
	}
	return m.tsk, nil
}

// String renders a human-readable single line, matching the shape
// Message[KIND from=S to=R <extras>].
func (m Message) String() string {
	to := "*"
	if m.receiver != Broadcast {
		to = fmt.Sprintf("%d", m.receiver)
	}
	switch m.kind {
	case LoadUpdate:
		return fmt.Sprintf("Message[%s from=%d to=%s depth=%d]", m.kind, m.sender, to, m.depth)
	case TaskTransfer:
		return fmt.Sprintf("Message[%s from=%d to=%s task=%d]", m.kind, m.sender, to, m.tsk.ID())
	default:
		return fmt.Sprintf("Message[%s from=%d to=%s]", m.kind, m.sender, to)
	}
}
