// Package identity derives and base64-encodes the libp2p keypairs
// internal/transport/p2p uses for host identity. taskmesh nodes are
// identified by a small integer, and that id needs to map onto the same
// libp2p peer ID every time a node restarts with the same cluster seed,
// so static peer address books stay valid across restarts instead of
// needing to be republished.
package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// DeriveKey deterministically derives an Ed25519 private key for nodeID
// within a cluster identified by seed. The same (seed, nodeID) pair always
// yields the same key, so restarting a node reproduces its peer ID.
func DeriveKey(seed []byte, nodeID int) (crypto.PrivKey, error) {
	h := sha256.New()
	h.Write(seed)
	fmt.Fprintf(h, ":node:%d", nodeID)
	material := h.Sum(nil) // 32 bytes, exactly what Ed25519 needs for its seed

	priv, _, err := crypto.GenerateEd25519Key(deterministicReader{material})
	if err != nil {
		return nil, fmt.Errorf("identity: deriving key for node %d: %w", nodeID, err)
	}
	return priv, nil
}

// PeerID derives the libp2p peer ID a key resolves to, without needing a
// live host.
func PeerID(priv crypto.PrivKey) (peer.ID, error) {
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("identity: deriving peer ID: %w", err)
	}
	return id, nil
}

// MarshalBase64 encodes a private key for storage in config or an
// environment variable.
func MarshalBase64(priv crypto.PrivKey) (string, error) {
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("identity: marshaling key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// UnmarshalBase64 reverses MarshalBase64.
func UnmarshalBase64(b64 string) (crypto.PrivKey, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("identity: decoding key: %w", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshaling key: %w", err)
	}
	return priv, nil
}

// deterministicReader replays a fixed byte slice, satisfying io.Reader for
// crypto.GenerateEd25519Key's entropy source. Ed25519 key generation in
// this library consumes exactly 32 bytes of seed material.
type deterministicReader struct {
	seed []byte
}

func (r deterministicReader) Read(p []byte) (int, error) {
	n := copy(p, r.seed)
	return n, nil
}
