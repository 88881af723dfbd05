// Package transport abstracts device-to-device discovery, connection
// negotiation and reliable ordered message delivery over a local mesh.
// The session layer uses this interface exclusively so that tests can run
// against an in-memory mesh while production uses the LAN implementation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxPeers caps a session at 8 devices total: one host plus seven clients.
const MaxPeers = 8

// PeerID uniquely identifies a device for the lifetime of a session.
type PeerID string

// Peer is the transport-level view of a remote device.
type Peer struct {
	ID          PeerID
	DisplayName string
	Addr        string
}

// ConnState mirrors the lifecycle of one peer link.
type ConnState string

const (
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnNotConnected ConnState = "notConnected"
)

// AdvertiseInfo describes the local device to browsing peers.
type AdvertiseInfo struct {
	ServiceID   string
	DisplayName string
}

// Event is the closed set of asynchronous transport notifications.
type Event interface{ isEvent() }

// PeerFound reports an advertising host seen while browsing.
type PeerFound struct{ Peer Peer }

// PeerLost reports a previously found host that stopped advertising.
type PeerLost struct{ Peer Peer }

// ConnectionChanged reports a link transition for one peer.
type ConnectionChanged struct {
	Peer  Peer
	State ConnState
}

// Invitation asks the local side to accept or reject an inbound connection.
// Respond must be called exactly once; it is safe to call from any goroutine.
type Invitation struct {
	Peer    Peer
	Context []byte
	Respond func(accept bool)
}

// Data carries one reliable, ordered payload from a connected peer.
type Data struct {
	From    PeerID
	Payload []byte
}

func (PeerFound) isEvent()         {}
func (PeerLost) isEvent()          {}
func (ConnectionChanged) isEvent() {}
func (Invitation) isEvent()        {}
func (Data) isEvent()              {}

// Transport is the peer mesh contract. Invite resolves asynchronously through
// a ConnectionChanged event rather than a direct return value.
type Transport interface {
	// SelfID returns the stable local peer identifier.
	SelfID() PeerID

	// StartAdvertising makes the local device discoverable to browsers.
	StartAdvertising(ctx context.Context, info AdvertiseInfo) error
	StopAdvertising()

	// StartBrowsing begins discovering advertising hosts for the service.
	StartBrowsing(ctx context.Context, serviceID string) error
	StopBrowsing()

	// Invite asks peer to connect, carrying opaque context bytes (the local
	// display name). The outcome arrives as a ConnectionChanged event within
	// the given timeout.
	Invite(ctx context.Context, peer PeerID, context []byte, timeout time.Duration) error

	// Send delivers payload reliably and in order to every listed peer.
	// It fails if any listed peer is not connected; it never silently drops.
	Send(peers []PeerID, payload []byte) error

	// DisconnectAll tears down every peer link synchronously.
	DisconnectAll()

	// Events returns the stream of transport notifications. The channel is
	// closed by Close.
	Events() <-chan Event

	Close() error
}

// Sentinel transport failures.
var (
	ErrPeerNotConnected = errors.New("peer not connected")
	ErrPeerUnknown      = errors.New("peer not discovered")
	ErrCapacity         = errors.New("connection capacity exceeded")
	ErrInviteTimeout    = errors.New("invitation timed out")
	ErrClosed           = errors.New("transport closed")
)

// Error wraps a transport failure with the operation and peer involved.
type Error struct {
	Op   string
	Peer PeerID
	Err  error
}

func (e *Error) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s peer %s: %v", e.Op, e.Peer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
