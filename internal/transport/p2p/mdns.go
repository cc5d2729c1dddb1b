package p2p

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

const helloProtocol = "/taskmesh/hello/1.0.0"

// helloMessage is the handshake a Host exchanges with any peer mDNS finds
// on the local network, so a libp2p-level connection can be attributed to
// a taskmesh node id (mDNS itself only knows about peer.ID, not the
// integer ids PeerNode and message.Message use).
type helloMessage struct {
	NodeID int `json:"nodeId"`
}

// mdnsNotifee connects to any peer mDNS finds and immediately performs a
// one-shot hello handshake to learn the discovered peer's node id before
// registering it.
type mdnsNotifee struct {
	h *Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	go n.h.greetAndRegister(pi)
}

// EnableMDNSDiscovery starts local-network peer discovery for h. mDNS is
// useful for a same-LAN demo mesh but is never the default, matching
// WithDHTDiscovery's posture that the peer set is static unless a
// discovery mechanism is explicitly requested.
func EnableMDNSDiscovery(h *Host, serviceName string) error {
	h.host.SetStreamHandler(helloProtocol, h.handleHelloStream)
	svc := mdns.NewMdnsService(h.host, serviceName, &mdnsNotifee{h: h})
	if err := svc.Start(); err != nil {
		return fmt.Errorf("p2p: starting mDNS service: %w", err)
	}
	h.mdns = svc
	return nil
}

func (h *Host) greetAndRegister(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	if err := h.host.Connect(ctx, pi); err != nil {
		return
	}
	s, err := h.host.NewStream(ctx, pi.ID, helloProtocol)
	if err != nil {
		return
	}
	defer s.Close()

	_ = s.SetDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(s).Encode(helloMessage{NodeID: h.nodeID}); err != nil {
		return
	}
	var reply helloMessage
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&reply); err != nil {
		return
	}

	h.mu.Lock()
	h.peers[reply.NodeID] = pi.ID
	h.mu.Unlock()
}

func (h *Host) handleHelloStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(5 * time.Second))

	var hello helloMessage
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&hello); err != nil {
		return
	}
	h.mu.Lock()
	h.peers[hello.NodeID] = s.Conn().RemotePeer()
	h.mu.Unlock()

	_ = json.NewEncoder(s).Encode(helloMessage{NodeID: h.nodeID})
}
