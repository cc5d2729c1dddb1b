// Package peerview holds each node's advisory, always-stale view of its
// peers' queue depths.
package peerview

import "sync"

// PeerView maps peer id to last-known queue depth. Entries are upserted on
// every LOAD_UPDATE and never deleted during normal operation — a peer
// that disappears simply stops being refreshed.
type PeerView struct {
	mu     sync.RWMutex
	depths map[int]int
}

// New constructs an empty PeerView.
func New() *PeerView {
	return &PeerView{depths: make(map[int]int)}
}

// Observe upserts peerID's last-known depth.
func (v *PeerView) Observe(peerID, depth int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.depths[peerID] = depth
}

// PickCheaperThan returns the peer with the minimum observed depth strictly
// less than myDepth, breaking ties by smallest peer id. It reports false if
// no peer qualifies.
func (v *PeerView) PickCheaperThan(myDepth int) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bestID := 0
	bestDepth := 0
	found := false
	for id, depth := range v.depths {
		if depth >= myDepth {
			continue
		}
		if !found || depth < bestDepth || (depth == bestDepth && id < bestID) {
			bestID, bestDepth, found = id, depth, true
		}
	}
	return bestID, found
}

// Snapshot returns a copy of the current peer-id-to-depth mapping.
func (v *PeerView) Snapshot() map[int]int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[int]int, len(v.depths))
	for id, depth := range v.depths {
		out[id] = depth
	}
	return out
}
