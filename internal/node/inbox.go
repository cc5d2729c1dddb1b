package node

import (
	"container/list"
	"sync"

	"taskmesh/internal/message"
)

// messageInbox is the per-node message FIFO, structurally identical to
// queue.TaskQueue but specialized to message.Message so its mutex stays a
// distinct lock from the task queue's: a node never holds more than one
// of {queue, peer view, peers, inbox} locked at a time.
type messageInbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newMessageInbox() *messageInbox {
	b := &messageInbox{items: list.New()}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *messageInbox) Push(m message.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.items.PushBack(m)
	b.cond.Signal()
}

func (b *messageInbox) PopBlocking() (message.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.items.Len() == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.items.Len() == 0 {
		return message.Message{}, false
	}
	front := b.items.Remove(b.items.Front())
	return front.(message.Message), true
}

func (b *messageInbox) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.items.Init()
	b.cond.Broadcast()
}
