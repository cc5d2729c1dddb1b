// Package transport defines the delivery capability PeerNodes use to reach
// each other, and ships an in-memory implementation. A second
// implementation lives in internal/transport/p2p for real-network delivery
// over libp2p, without changing anything that depends on this interface.
package transport

import (
	"errors"
	"sync"

	"taskmesh/internal/message"
)

// ErrUnknownReceiver is returned by Unicast when no handler is registered
// for the message's receiver.
var ErrUnknownReceiver = errors.New("transport: unknown receiver")

// Handler accepts an inbound message. It must not block on heavy
// processing — it should merely enqueue the message for later handling.
type Handler interface {
	Accept(m message.Message)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(m message.Message)

// Accept implements Handler.
func (f HandlerFunc) Accept(m message.Message) { f(m) }

// Transport is the capability PeerNodes use for unicast and
// broadcast-except-self delivery. InMemory delivers synchronously:
// its Unicast/Broadcast return only after every target handler has
// accepted the message. The libp2p Host in internal/transport/p2p does
// not: it returns once the message has been sent.
type Transport interface {
	Register(nodeID int, h Handler)
	Unicast(m message.Message) error
	Broadcast(senderID int, m message.Message) error
	KnownIDs() []int
}

// InMemory is a synchronous, in-process Transport. Registry access is
// guarded by an RWMutex since registrations are rare relative to sends.
type InMemory struct {
	mu       sync.RWMutex
	handlers map[int]Handler
}

// NewInMemory constructs an empty in-memory transport.
func NewInMemory() *InMemory {
	return &InMemory{handlers: make(map[int]Handler)}
}

// Register installs h as the handler for nodeID, overwriting any previous
// registration for that id.
func (t *InMemory) Register(nodeID int, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[nodeID] = h
}

// Unicast delivers m to the handler registered for m.Receiver(). It fails
// with ErrUnknownReceiver if no such handler is registered; the message is
// dropped and never retried.
func (t *InMemory) Unicast(m message.Message) error {
	t.mu.RLock()
	h, ok := t.handlers[m.Receiver()]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownReceiver
	}
	h.Accept(m)
	return nil
}

// Broadcast delivers m to every registered handler whose id differs from
// senderID. Delivery to each recipient is independent and best-effort; a
// handler panic is not caught here, matching the spec's "never propagate
// out of the core" policy only for transport/logging faults, not programmer
// error.
func (t *InMemory) Broadcast(senderID int, m message.Message) error {
	t.mu.RLock()
	targets := make([]Handler, 0, len(t.handlers))
	for id, h := range t.handlers {
		if id == senderID {
			continue
		}
		targets = append(targets, h)
	}
	t.mu.RUnlock()
	for _, h := range targets {
		h.Accept(m)
	}
	return nil
}

// KnownIDs returns a snapshot of currently registered ids.
func (t *InMemory) KnownIDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	return ids
}
