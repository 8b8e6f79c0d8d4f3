// Package net defines the transport contract between game logic and the
// network. A Transport moves opaque byte payloads between peers with a
// selectable delivery guarantee and surfaces connection lifecycle through an
// event queue drained by Poll. It knows nothing about packet contents.
package net

import "errors"

// Peer is an opaque transport-assigned connection handle. Handles are reused
// after disconnect, so they are only valid between a peer-connected and the
// matching peer-disconnected event.
type Peer uint32

// Delivery selects the ordering/reliability guarantee for an outgoing payload.
type Delivery int

const (
	// Unreliable payloads may be dropped and arrive in any order.
	Unreliable Delivery = iota
	// Reliable payloads always arrive, in any order.
	Reliable
	// ReliableOrdered payloads always arrive in send order; head-of-line
	// blocking is acceptable.
	ReliableOrdered
	// Sequenced payloads are latest-wins: superseded older payloads are
	// silently dropped instead of retransmitted.
	Sequenced
)

// Kind names a transport implementation.
type Kind string

const (
	// KindWebSocket is the live implementation.
	KindWebSocket Kind = "websocket"
	// KindDatagram is reserved for a UDP transport that does not exist yet.
	KindDatagram Kind = "datagram"
)

// ErrUnknownKind reports a transport kind with no implementation.
var ErrUnknownKind = errors.New("net: unknown transport kind")

// ErrUnknownPeer reports a send against a handle that is not connected.
var ErrUnknownPeer = errors.New("net: unknown peer")

// DisconnectReason explains why a peer left.
type DisconnectReason string

const (
	ReasonClosed   DisconnectReason = "closed"
	ReasonReadErr  DisconnectReason = "read-error"
	ReasonWriteErr DisconnectReason = "write-error"
	ReasonOverflow DisconnectReason = "send-overflow"
	ReasonShutdown DisconnectReason = "shutdown"
	ReasonTimeout  DisconnectReason = "heartbeat-timeout"
)

// Handlers receives drained events during Poll. Nil fields are skipped.
type Handlers struct {
	PeerConnected    func(peer Peer)
	PeerDisconnected func(peer Peer, reason DisconnectReason)
	Data             func(peer Peer, payload []byte)
	LatencyUpdated   func(peer Peer, millis int64)
}

// Transport is a role-agnostic endpoint. Servers call Start/Stop, clients
// call Connect/Disconnect; both poll and send the same way.
type Transport interface {
	Start(port int) error
	Stop()
	Connect(host string, port int) error
	Disconnect()

	// Poll drains every queued event, invoking the matching handler for
	// each. It never blocks and must be called once per frame or tick.
	Poll(h Handlers)

	SendToAll(payload []byte, delivery Delivery)
	SendToPeer(peer Peer, payload []byte, delivery Delivery) error

	// ClosePeer force-disconnects one peer; the matching peer-disconnected
	// event carries the given reason.
	ClosePeer(peer Peer, reason DisconnectReason)
}
