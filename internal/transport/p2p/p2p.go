// Package p2p implements transport.Transport over a real libp2p network.
// internal/node depends only on the transport.Transport interface, never
// on this package, so a mesh can swap the in-memory transport for this one
// without touching the core.
//
// Broadcast (LOAD_UPDATE, PEER_DISCOVERY) rides a GossipSub topic via
// pubsub.NewGossipSub and a Subscribe/Next loop. Unicast (TASK_TRANSFER,
// TASK_REQUEST) has no pubsub equivalent, so it uses a direct libp2p stream
// protocol instead, one-way since a TaskTransfer has no reply.
//
// Unlike transport.InMemory, Unicast and Broadcast return once the message
// has been written to the stream or published on the topic, before the
// remote handler has accepted it.
package p2p

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"

	"taskmesh/internal/identity"
	"taskmesh/internal/message"
	"taskmesh/internal/task"
	"taskmesh/internal/transport"
)

// NewMeshTopicName builds a GossipSub topic name for one simulation run,
// namespacing it with a random suffix so repeated local runs (and parallel
// test processes) never share a mesh by topic-name collision on a shared
// libp2p rendezvous.
func NewMeshTopicName(clusterName string) string {
	return fmt.Sprintf("taskmesh/%s/%s", clusterName, uuid.New().String())
}

const unicastProtocol = "/taskmesh/unicast/1.0.0"

// wireMessage is the JSON-over-the-wire shape for both the gossip topic and
// the unicast stream protocol. It mirrors message.Message's variants
// exactly; only the fields relevant to Kind are populated.
type wireMessage struct {
	Kind     message.Kind `json:"kind"`
	Sender   int          `json:"sender"`
	Receiver int          `json:"receiver"`
	Depth    int          `json:"depth,omitempty"`
	TaskID   int          `json:"taskId,omitempty"`
	TaskCost int          `json:"taskCost,omitempty"`
}

func toWire(m message.Message) wireMessage {
	w := wireMessage{Kind: m.Kind(), Sender: m.Sender(), Receiver: m.Receiver()}
	if d, err := m.Depth(); err == nil {
		w.Depth = d
	}
	if t, err := m.Task(); err == nil {
		w.TaskID = t.ID()
		w.TaskCost = t.CostMS()
	}
	return w
}

func fromWire(w wireMessage) message.Message {
	switch w.Kind {
	case message.LoadUpdate:
		return message.NewLoadUpdate(w.Sender, w.Depth)
	case message.TaskTransfer:
		return message.NewTaskTransfer(w.Sender, w.Receiver, task.New(w.TaskID, w.TaskCost))
	case message.PeerDiscovery:
		return message.NewPeerDiscovery(w.Sender)
	default:
		return message.NewTaskRequest(w.Sender, w.Receiver)
	}
}

// PeerAddr is a known peer's dial address, used to seed the static peer
// list when DHT discovery is not enabled.
type PeerAddr struct {
	NodeID int
	Addr   multiaddr.Multiaddr
	ID     peer.ID
}

// Host wires a taskmesh node id to a real libp2p host, a GossipSub topic
// for broadcast, and a direct-stream protocol for unicast. It implements
// transport.Transport.
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc

	host  host.Host
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	dht   *dht.IpfsDHT
	mdns  mdns.Service

	nodeID int

	mu       sync.RWMutex
	handlers map[int]transport.Handler
	peers    map[int]peer.ID // taskmesh node id -> libp2p peer id
}

// Option configures a Host at construction time.
type Option func(*hostConfig)

type hostConfig struct {
	listenAddrs []string
	useDHT      bool
	bootstrap   []multiaddr.Multiaddr
	clusterSeed []byte
}

// WithClusterSeed makes the host's libp2p identity deterministic: the same
// (seed, nodeID) pair always derives the same key via internal/identity,
// so a node's peer ID survives a restart. Without this option each host
// gets a fresh random identity.
func WithClusterSeed(seed []byte) Option {
	return func(c *hostConfig) { c.clusterSeed = seed }
}

// WithListenAddrs overrides the libp2p listen multiaddrs (default: a
// random loopback TCP port, suitable for same-machine test meshes).
func WithListenAddrs(addrs ...string) Option {
	return func(c *hostConfig) { c.listenAddrs = addrs }
}

// WithDHTDiscovery makes NewHost create and bootstrap a Kademlia DHT on the
// host. The bootstrap addresses are recorded but not dialed, and the DHT
// does not add entries to the node-id map Unicast dials against, so the
// static peer list from AddKnownPeer is still needed. This is an explicit
// opt-in: no DHT is created by default.
func WithDHTDiscovery(bootstrap ...multiaddr.Multiaddr) Option {
	return func(c *hostConfig) {
		c.useDHT = true
		c.bootstrap = bootstrap
	}
}

// NewHost constructs and starts a libp2p host for taskmesh node nodeID,
// joining the given GossipSub topic name for broadcast delivery.
func NewHost(ctx context.Context, nodeID int, topicName string, opts ...Option) (*Host, error) {
	cfg := &hostConfig{listenAddrs: []string{"/ip4/127.0.0.1/tcp/0"}}
	for _, opt := range opts {
		opt(cfg)
	}

	var priv p2pcrypto.PrivKey
	var err error
	if cfg.clusterSeed != nil {
		priv, err = identity.DeriveKey(cfg.clusterSeed, nodeID)
	} else {
		priv, _, err = p2pcrypto.GenerateKeyPairWithReader(p2pcrypto.Ed25519, -1, rand.Reader)
	}
	if err != nil {
		return nil, fmt.Errorf("p2p: generating identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.listenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: creating libp2p host: %w", err)
	}

	hctx, cancel := context.WithCancel(ctx)

	ps, err := pubsub.NewGossipSub(hctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: creating gossipsub: %w", err)
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: joining topic %q: %w", topicName, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: subscribing to topic %q: %w", topicName, err)
	}

	ph := &Host{
		ctx:      hctx,
		cancel:   cancel,
		host:     h,
		topic:    topic,
		sub:      sub,
		nodeID:   nodeID,
		handlers: make(map[int]transport.Handler),
		peers:    make(map[int]peer.ID),
	}

	if cfg.useDHT {
		kdht, err := dht.New(hctx, h)
		if err != nil {
			ph.Close()
			return nil, fmt.Errorf("p2p: creating DHT: %w", err)
		}
		if err := kdht.Bootstrap(hctx); err != nil {
			ph.Close()
			return nil, fmt.Errorf("p2p: bootstrapping DHT: %w", err)
		}
		ph.dht = kdht
	}

	h.SetStreamHandler(unicastProtocol, ph.handleUnicastStream)
	go ph.gossipLoop()

	return ph, nil
}

// LocalAddrs returns this host's dialable multiaddrs, for out-of-band peer
// address exchange (the spec's wiring step, performed by the driver).
func (h *Host) LocalAddrs() []multiaddr.Multiaddr {
	return h.host.Addrs()
}

// LocalPeerID returns this host's libp2p identity.
func (h *Host) LocalPeerID() peer.ID {
	return h.host.ID()
}

// AddKnownPeer records the libp2p address of another taskmesh node so
// Unicast can dial it directly. Unicast reaches only node ids recorded here
// or learned through the mDNS hello handshake; DHT discovery adds none.
func (h *Host) AddKnownPeer(nodeID int, addr multiaddr.Multiaddr, id peer.ID) error {
	ai := peer.AddrInfo{ID: id, Addrs: []multiaddr.Multiaddr{addr}}
	if err := h.host.Connect(h.ctx, ai); err != nil {
		return fmt.Errorf("p2p: connecting to node %d: %w", nodeID, err)
	}
	h.mu.Lock()
	h.peers[nodeID] = id
	h.mu.Unlock()
	return nil
}

// Register installs h as the handler for nodeID's inbound messages,
// overwriting any previous registration — the same contract as
// transport.InMemory.Register.
func (h *Host) Register(nodeID int, handler transport.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[nodeID] = handler
}

// Unicast opens a direct stream to m.Receiver()'s libp2p peer id and writes
// the framed message. It fails with transport.ErrUnknownReceiver if no
// peer address is known for the receiver.
func (h *Host) Unicast(m message.Message) error {
	h.mu.RLock()
	target, ok := h.peers[m.Receiver()]
	h.mu.RUnlock()
	if !ok {
		return transport.ErrUnknownReceiver
	}

	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	s, err := h.host.NewStream(ctx, target, unicastProtocol)
	if err != nil {
		return fmt.Errorf("p2p: opening stream to node %d: %w", m.Receiver(), err)
	}
	defer s.Close()

	if err := json.NewEncoder(s).Encode(toWire(m)); err != nil {
		return fmt.Errorf("p2p: writing to node %d: %w", m.Receiver(), err)
	}
	return nil
}

// Broadcast publishes m on the GossipSub topic. Every subscriber except
// the sender delivers it to its locally-registered handler via
// gossipLoop's own-message filter.
func (h *Host) Broadcast(senderID int, m message.Message) error {
	data, err := json.Marshal(toWire(m))
	if err != nil {
		return fmt.Errorf("p2p: marshaling broadcast: %w", err)
	}
	return h.topic.Publish(h.ctx, data)
}

// KnownIDs returns the taskmesh node ids this host currently has a libp2p
// peer address for.
func (h *Host) KnownIDs() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down the gossip subscription and the libp2p host.
func (h *Host) Close() error {
	h.cancel()
	h.sub.Cancel()
	if h.dht != nil {
		h.dht.Close()
	}
	if h.mdns != nil {
		h.mdns.Close()
	}
	return h.host.Close()
}

func (h *Host) gossipLoop() {
	for {
		msg, err := h.sub.Next(h.ctx)
		if err != nil {
			return // context cancelled on Close, or subscription torn down
		}
		var w wireMessage
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			continue
		}
		if w.Sender == h.nodeID {
			continue // never deliver our own broadcast back to ourselves
		}
		h.deliverLocal(fromWire(w))
	}
}

func (h *Host) handleUnicastStream(s network.Stream) {
	defer s.Close()
	_ = s.SetReadDeadline(time.Now().Add(10 * time.Second))

	var w wireMessage
	if err := json.NewDecoder(bufio.NewReader(io.LimitReader(s, 1<<20))).Decode(&w); err != nil {
		return
	}
	h.deliverLocal(fromWire(w))
}

// deliverLocal hands m to whichever taskmesh node is registered for its
// receiver (or, for broadcast messages, every registered node) — mirroring
// transport.InMemory's synchronous-delivery contract.
func (h *Host) deliverLocal(m message.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m.Receiver() == message.Broadcast {
		for _, handler := range h.handlers {
			handler.Accept(m)
		}
		return
	}
	if handler, ok := h.handlers[m.Receiver()]; ok {
		handler.Accept(m)
	}
}
