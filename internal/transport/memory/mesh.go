// Package memory provides an in-process implementation of the transport
// contract. A Mesh links Node transports directly through channels, which
// lets session and game tests exercise multi-peer behavior without sockets.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/seanwh01/football-player-trivia-sub000/internal/transport"
)

// Mesh is the shared fabric connecting in-process nodes.
type Mesh struct {
	mu    sync.Mutex
	nodes map[transport.PeerID]*Node
}

func NewMesh() *Mesh {
	return &Mesh{nodes: make(map[transport.PeerID]*Node)}
}

// Node creates and registers a transport endpoint on the mesh.
func (m *Mesh) Node(id transport.PeerID, displayName string) *Node {
	n := &Node{
		mesh:   m,
		id:     id,
		name:   displayName,
		events: make(chan transport.Event, 128),
		conns:  make(map[transport.PeerID]struct{}),
	}
	m.mu.Lock()
	m.nodes[id] = n
	m.mu.Unlock()
	return n
}

func (m *Mesh) lookup(id transport.PeerID) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return n, ok
}

func (m *Mesh) remove(id transport.PeerID) {
	m.mu.Lock()
	delete(m.nodes, id)
	m.mu.Unlock()
}

func (m *Mesh) each(fn func(*Node)) {
	m.mu.Lock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()
	for _, n := range nodes {
		fn(n)
	}
}

// Node implements transport.Transport over the mesh.
type Node struct {
	mesh   *Mesh
	id     transport.PeerID
	name   string
	events chan transport.Event

	mu          sync.Mutex
	advertising bool
	browsing    bool
	closed      bool
	conns       map[transport.PeerID]struct{}
}

var _ transport.Transport = (*Node)(nil)

func (n *Node) SelfID() transport.PeerID { return n.id }

func (n *Node) peer() transport.Peer {
	return transport.Peer{ID: n.id, DisplayName: n.name}
}

func (n *Node) StartAdvertising(_ context.Context, info transport.AdvertiseInfo) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return &transport.Error{Op: "advertise", Err: transport.ErrClosed}
	}
	if info.DisplayName != "" {
		n.name = info.DisplayName
	}
	n.advertising = true
	n.mu.Unlock()

	n.mesh.each(func(other *Node) {
		if other.id == n.id {
			return
		}
		other.mu.Lock()
		browsing := other.browsing
		other.mu.Unlock()
		if browsing {
			other.emit(transport.PeerFound{Peer: n.peer()})
		}
	})
	return nil
}

func (n *Node) StopAdvertising() {
	n.mu.Lock()
	wasAdvertising := n.advertising
	n.advertising = false
	n.mu.Unlock()
	if !wasAdvertising {
		return
	}
	n.mesh.each(func(other *Node) {
		if other.id == n.id {
			return
		}
		other.mu.Lock()
		browsing := other.browsing
		other.mu.Unlock()
		if browsing {
			other.emit(transport.PeerLost{Peer: n.peer()})
		}
	})
}

func (n *Node) StartBrowsing(_ context.Context, _ string) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return &transport.Error{Op: "browse", Err: transport.ErrClosed}
	}
	n.browsing = true
	n.mu.Unlock()

	n.mesh.each(func(other *Node) {
		if other.id == n.id {
			return
		}
		other.mu.Lock()
		advertising := other.advertising
		other.mu.Unlock()
		if advertising {
			n.emit(transport.PeerFound{Peer: other.peer()})
		}
	})
	return nil
}

func (n *Node) StopBrowsing() {
	n.mu.Lock()
	n.browsing = false
	n.mu.Unlock()
}

func (n *Node) Invite(_ context.Context, peer transport.PeerID, inviteCtx []byte, timeout time.Duration) error {
	target, ok := n.mesh.lookup(peer)
	if !ok {
		return &transport.Error{Op: "invite", Peer: peer, Err: transport.ErrPeerUnknown}
	}

	n.emit(transport.ConnectionChanged{Peer: target.peer(), State: transport.ConnConnecting})

	// Hard capacity check: a full peer rejects deterministically, it never
	// queues the invitation.
	target.mu.Lock()
	full := len(target.conns) >= transport.MaxPeers-1
	target.mu.Unlock()
	if full {
		n.emit(transport.ConnectionChanged{Peer: target.peer(), State: transport.ConnNotConnected})
		return nil
	}

	var once sync.Once
	resolve := func(accept bool) {
		once.Do(func() {
			if !accept {
				n.emit(transport.ConnectionChanged{Peer: target.peer(), State: transport.ConnNotConnected})
				return
			}
			n.mu.Lock()
			n.conns[target.id] = struct{}{}
			n.mu.Unlock()
			target.mu.Lock()
			target.conns[n.id] = struct{}{}
			target.mu.Unlock()
			target.emit(transport.ConnectionChanged{Peer: n.peer(), State: transport.ConnConnected})
			n.emit(transport.ConnectionChanged{Peer: target.peer(), State: transport.ConnConnected})
		})
	}

	if timeout > 0 {
		time.AfterFunc(timeout, func() { resolve(false) })
	}
	target.emit(transport.Invitation{Peer: n.peer(), Context: inviteCtx, Respond: resolve})
	return nil
}

func (n *Node) Send(peers []transport.PeerID, payload []byte) error {
	n.mu.Lock()
	for _, p := range peers {
		if _, ok := n.conns[p]; !ok {
			n.mu.Unlock()
			return &transport.Error{Op: "send", Peer: p, Err: transport.ErrPeerNotConnected}
		}
	}
	n.mu.Unlock()

	for _, p := range peers {
		if target, ok := n.mesh.lookup(p); ok {
			target.emit(transport.Data{From: n.id, Payload: payload})
		}
	}
	return nil
}

func (n *Node) DisconnectAll() {
	n.mu.Lock()
	peers := make([]transport.PeerID, 0, len(n.conns))
	for p := range n.conns {
		peers = append(peers, p)
	}
	n.conns = make(map[transport.PeerID]struct{})
	n.mu.Unlock()

	for _, p := range peers {
		target, ok := n.mesh.lookup(p)
		if !ok {
			continue
		}
		target.mu.Lock()
		delete(target.conns, n.id)
		target.mu.Unlock()
		target.emit(transport.ConnectionChanged{Peer: n.peer(), State: transport.ConnNotConnected})
		n.emit(transport.ConnectionChanged{Peer: target.peer(), State: transport.ConnNotConnected})
	}
}

func (n *Node) Events() <-chan transport.Event { return n.events }

func (n *Node) Close() error {
	n.DisconnectAll()
	n.StopAdvertising()
	n.StopBrowsing()

	n.mu.Lock()
	alreadyClosed := n.closed
	n.closed = true
	n.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	n.mesh.remove(n.id)
	close(n.events)
	return nil
}

// emit delivers an event without blocking mesh-wide operations. The buffer is
// sized generously; a reader that stops draining loses newest events rather
// than wedging every other node.
func (n *Node) emit(ev transport.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.events <- ev:
	default:
	}
}
