// Package node implements PeerNode, the centerpiece of the mesh: a
// symmetric worker node that drains its local task queue, gossips its
// depth to peers, and sheds work to whichever peer it believes cheapest
// once its own depth crosses a configured threshold.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"taskmesh/internal/logging"
	"taskmesh/internal/message"
	"taskmesh/internal/metrics"
	"taskmesh/internal/peerview"
	"taskmesh/internal/queue"
	"taskmesh/internal/task"
	"taskmesh/internal/transport"
)

const (
	defaultWorkers      = 2
	defaultGossipPeriod = 500 * time.Millisecond
)

// Option configures optional PeerNode dependencies at construction time.
type Option func(*PeerNode)

// WithLogger injects a Logger. The default is logging.Discard.
func WithLogger(l logging.Logger) Option {
	return func(n *PeerNode) { n.logger = l }
}

// WithMetrics injects a Prometheus-backed metrics registry. The default is
// nil, in which case metrics recording is skipped entirely.
func WithMetrics(m *metrics.Registry) Option {
	return func(n *PeerNode) { n.metrics = m }
}

// WithWorkers overrides the worker pool size (default 2).
func WithWorkers(w int) Option {
	return func(n *PeerNode) {
		if w > 0 {
			n.workers = w
		}
	}
}

// WithGossipPeriod overrides the gossip/offload tick period T (default
// 500ms).
func WithGossipPeriod(d time.Duration) Option {
	return func(n *PeerNode) {
		if d > 0 {
			n.period = d
		}
	}
}

// PeerNode hosts a task queue and a peer view, and runs the worker pool,
// gossip/offload ticker, and inbox pump that together make it a mesh
// participant.
type PeerNode struct {
	id        int
	threshold int
	transport transport.Transport

	queue    *queue.TaskQueue
	inbox    *messageInbox
	peerView *peerview.PeerView

	peersMu sync.Mutex
	peers   []int

	tasksProcessed int64 // atomic

	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup

	workers int
	period  time.Duration

	logger  logging.Logger
	metrics *metrics.Registry
}

// New constructs a stopped PeerNode. id must be >= 0, threshold >= 1, and
// tr non-nil.
func New(id, threshold int, tr transport.Transport, opts ...Option) *PeerNode {
	n := &PeerNode{
		id:        id,
		threshold: threshold,
		transport: tr,
		queue:     queue.New(),
		inbox:     newMessageInbox(),
		peerView:  peerview.New(),
		stopCh:    make(chan struct{}),
		workers:   defaultWorkers,
		period:    defaultGossipPeriod,
		logger:    logging.Discard,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node's immutable identity.
func (n *PeerNode) ID() int { return n.id }

// Start transitions Stopped->Running, registers with the transport, and
// spawns the node's workers + gossiper + inbox pump. Calling Start on an
// already-started node is a no-op.
func (n *PeerNode) Start() {
	n.startOnce.Do(func() {
		n.running.Store(true)
		n.transport.Register(n.id, transport.HandlerFunc(n.HandleMessage))

		for i := 0; i < n.workers; i++ {
			n.wg.Add(1)
			go n.workerLoop()
		}
		n.wg.Add(1)
		go n.pumpLoop()
		n.wg.Add(1)
		go n.gossipLoop()

		n.logger.LogNodeEvent(n.id, "started")
	})
}

// Stop transitions Running->Stopped: it closes the queue and inbox (waking
// every blocked waiter with absence) and joins every unit. Tasks still
// resident in the queue at this point are discarded. Calling Stop more
// than once, or before Start, is a no-op.
func (n *PeerNode) Stop() {
	if !n.running.Load() {
		return
	}
	n.stopOnce.Do(func() {
		n.running.Store(false)
		close(n.stopCh)
		n.queue.Close()
		n.inbox.Close()
		n.wg.Wait()
		n.logger.LogNodeEvent(n.id, "stopped")
	})
}

// StopDraining is the graceful-shutdown variant: it stops accepting new
// gossip ticks immediately but gives the already-running workers up to
// ctx's deadline to drain the queue before falling back to Stop's
// discard-on-close behavior.
func (n *PeerNode) StopDraining(ctx context.Context) error {
	var drainErr error
	n.stopOnce.Do(func() {
		n.running.Store(false)
		close(n.stopCh)

		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
	drain:
		for n.queue.Size() > 0 {
			select {
			case <-ctx.Done():
				drainErr = ctx.Err()
				break drain
			case <-ticker.C:
			}
		}

		n.queue.Close()
		n.inbox.Close()
		n.wg.Wait()
		n.logger.LogNodeEvent(n.id, "stopped (drained)")
	})
	return drainErr
}

// AddTask enqueues t locally, waking at most one worker. Safe to call
// before Start or after Stop (it no-ops once the queue is closed).
func (n *PeerNode) AddTask(t task.Task) {
	n.queue.Push(t)
}

// CurrentLoad reports the local queue depth.
func (n *PeerNode) CurrentLoad() int {
	return n.queue.Size()
}

// TasksProcessed reports the monotone count of tasks this node's workers
// have completed.
func (n *PeerNode) TasksProcessed() int {
	return int(atomic.LoadInt64(&n.tasksProcessed))
}

// HandleMessage is the Transport-facing entry point: it appends m to the
// inbox and returns promptly. It drops m silently once the node is
// stopped (the inbox is closed and Push becomes a no-op).
func (n *PeerNode) HandleMessage(m message.Message) {
	n.inbox.Push(m)
}

// AddPeer idempotently adds p to the peer set. Adding the node's own id is
// ignored (a node is never its own peer).
func (n *PeerNode) AddPeer(p int) {
	if p == n.id {
		return
	}
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	for _, existing := range n.peers {
		if existing == p {
			return
		}
	}
	n.peers = append(n.peers, p)
}

// Peers returns a snapshot of the current peer set.
func (n *PeerNode) Peers() []int {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	out := make([]int, len(n.peers))
	copy(out, n.peers)
	return out
}

func (n *PeerNode) workerLoop() {
	defer n.wg.Done()
	for {
		t, ok := n.queue.PopBlocking()
		if !ok {
			return
		}
		t.Execute()
		atomic.AddInt64(&n.tasksProcessed, 1)
		if n.metrics != nil {
			n.metrics.IncTasksProcessed(n.id)
		}
	}
}

func (n *PeerNode) pumpLoop() {
	defer n.wg.Done()
	for {
		m, ok := n.inbox.PopBlocking()
		if !ok {
			return
		}
		n.dispatch(m)
	}
}

func (n *PeerNode) dispatch(m message.Message) {
	switch m.Kind() {
	case message.LoadUpdate:
		depth, err := m.Depth()
		if err != nil {
			n.logger.LogNodeEvent(n.id, fmt.Sprintf("malformed LOAD_UPDATE from %d: %v", m.Sender(), err))
			return
		}
		n.peerView.Observe(m.Sender(), depth)

	case message.TaskTransfer:
		t, err := m.Task()
		if err != nil {
			n.logger.LogNodeEvent(n.id, fmt.Sprintf("malformed TASK_TRANSFER from %d: %v", m.Sender(), err))
			return
		}
		n.AddTask(t)
		if n.metrics != nil {
			n.metrics.IncOffloadReceived(n.id)
		}
		n.logger.LogNodeEvent(n.id, fmt.Sprintf("received task %d from node %d", t.ID(), m.Sender()))

	case message.PeerDiscovery:
		n.AddPeer(m.Sender())

	case message.TaskRequest:
		// Reserved; no side effects in this core.

	default:
		n.logger.LogNodeEvent(n.id, fmt.Sprintf("dropping message of unknown kind from %d", m.Sender()))
	}
}

func (n *PeerNode) gossipLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.period)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-n.stopCh:
			return
		case now := <-ticker.C:
			if n.metrics != nil {
				n.metrics.ObserveGossipTick(n.id, now.Sub(last).Seconds())
			}
			last = now
			n.Tick()
		}
	}
}

// Tick runs one gossip/offload evaluation synchronously. It is the unit of
// work the periodic ticker performs; exposed so tests can drive it
// deterministically instead of waiting on wall-clock time.
func (n *PeerNode) Tick() {
	depth := n.CurrentLoad()
	if n.metrics != nil {
		n.metrics.ObserveDepth(n.id, depth)
	}
	n.logger.LogMetrics(n.id, depth, n.TasksProcessed())

	update := message.NewLoadUpdate(n.id, depth)
	if err := n.transport.Broadcast(n.id, update); err != nil {
		n.logger.LogNodeEvent(n.id, fmt.Sprintf("gossip broadcast failed: %v", err))
	}

	if depth > n.threshold {
		n.attemptOffload(depth)
	}
}

// attemptOffload pops the oldest local task and sends it to the cheapest
// peer strictly below depth, reinserting it locally if no such peer exists
// or the unicast fails.
func (n *PeerNode) attemptOffload(depth int) {
	t, ok := n.queue.TryPop()
	if !ok {
		return
	}

	peerID, ok := n.peerView.PickCheaperThan(depth)
	if !ok {
		n.queue.PushFront(t)
		return
	}

	transfer := message.NewTaskTransfer(n.id, peerID, t)
	if err := n.transport.Unicast(transfer); err != nil {
		n.logger.LogNodeEvent(n.id, fmt.Sprintf("offload of task %d to node %d failed: %v; reinserted", t.ID(), peerID, err))
		n.queue.PushFront(t)
		return
	}

	if n.metrics != nil {
		n.metrics.IncOffloadSent(n.id)
	}
	n.logger.LogNodeEvent(n.id, fmt.Sprintf("offloaded task %d to node %d", t.ID(), peerID))
}
