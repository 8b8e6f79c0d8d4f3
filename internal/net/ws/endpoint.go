// Package ws implements the websocket transport. It is the only live
// implementation of the net.Transport contract; the datagram variant is a
// deliberately absent Kind rejected at construction time.
package ws

import (
	"fmt"
	stdnet "net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lanternfall/internal/net"
)

// Config carries the admission policy shared by both endpoint roles.
type Config struct {
	// Secret is the pre-shared connection key. Handshakes without a token
	// signed by it are rejected before any game logic runs.
	Secret string
	// MaxPeers caps concurrent connections at the transport boundary.
	MaxPeers int
	// PacketsPerSecond and PacketBurst bound inbound payloads per peer.
	// Zero disables the limit.
	PacketsPerSecond int
	PacketBurst      int

	Logger *zap.SugaredLogger
}

// Endpoint is a websocket net.Transport. A server endpoint listens and admits
// peers; a client endpoint dials and holds a single peer for the server.
type Endpoint struct {
	cfg    Config
	events net.EventQueue

	mu        sync.Mutex
	peers     map[net.Peer]*session
	nextPeer  net.Peer
	freePeers []net.Peer
	// reserved counts handshakes that passed the capacity check but have
	// not registered a peer yet.
	reserved int

	server *http.Server

	droppedPackets atomic.Int64
}

// New constructs an endpoint for the given kind. Only net.KindWebSocket is
// implemented; net.KindDatagram is reserved and rejected.
func New(kind net.Kind, cfg Config) (*Endpoint, error) {
	switch kind {
	case net.KindWebSocket:
	case net.KindDatagram:
		return nil, fmt.Errorf("%w: %q is reserved but not implemented", net.ErrUnknownKind, kind)
	default:
		return nil, fmt.Errorf("%w: %q", net.ErrUnknownKind, kind)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Endpoint{
		cfg:   cfg,
		peers: make(map[net.Peer]*session),
	}, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Admission rides on the signed token, not the Origin header.
		return true
	},
}

// Start listens for peer connections on the given port.
func (e *Endpoint) Start(port int) error {
	listener, err := stdnet.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", e.handleWS)

	e.mu.Lock()
	e.server = &http.Server{Handler: mux}
	server := e.server
	e.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			e.cfg.Logger.Errorw("websocket listener stopped", "error", err)
		}
	}()
	return nil
}

func (e *Endpoint) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := VerifyToken(e.cfg.Secret, r.URL.Query().Get("token")); err != nil {
		e.cfg.Logger.Infow("rejecting handshake", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !e.tryReserveSlot() {
		e.cfg.Logger.Infow("rejecting handshake at capacity", "remote", r.RemoteAddr)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.releaseSlot()
		e.cfg.Logger.Infow("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	e.adopt(conn, true)
}

// tryReserveSlot counts a handshake in flight against the peer cap, so
// concurrent upgrades cannot overshoot it between the check and adopt.
func (e *Endpoint) tryReserveSlot() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.MaxPeers > 0 && len(e.peers)+e.reserved >= e.cfg.MaxPeers {
		return false
	}
	e.reserved++
	return true
}

// releaseSlot returns a reservation that never became a peer.
func (e *Endpoint) releaseSlot() {
	e.mu.Lock()
	if e.reserved > 0 {
		e.reserved--
	}
	e.mu.Unlock()
}

// Connect dials a server endpoint, presenting a token minted from the shared
// secret.
func (e *Endpoint) Connect(host string, port int) error {
	token, err := MintToken(e.cfg.Secret, time.Now())
	if err != nil {
		return err
	}
	target := url.URL{
		Scheme:   "ws",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/ws",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.Host, err)
	}
	e.adopt(conn, false)
	return nil
}

// adopt registers a live connection under a freshly assigned peer handle and
// starts its pumps. reserved marks a connection that holds a capacity slot
// from tryReserveSlot; registering the peer consumes the reservation.
func (e *Endpoint) adopt(conn *websocket.Conn, reserved bool) {
	var limiter *rate.Limiter
	if e.cfg.PacketsPerSecond > 0 {
		burst := e.cfg.PacketBurst
		if burst <= 0 {
			burst = e.cfg.PacketsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(e.cfg.PacketsPerSecond), burst)
	}

	e.mu.Lock()
	if reserved && e.reserved > 0 {
		e.reserved--
	}
	peer := e.allocPeerLocked()
	sess := newSession(peer, conn, limiter)
	e.peers[peer] = sess
	e.mu.Unlock()

	e.events.PushConnected(peer)

	go sess.writePump()
	go sess.readPump(&e.events, func() { e.droppedPackets.Add(1) })
	go func() {
		<-sess.closed
		e.mu.Lock()
		if e.peers[peer] == sess {
			delete(e.peers, peer)
			e.freePeers = append(e.freePeers, peer)
		}
		e.mu.Unlock()
		e.events.PushDisconnected(peer, sess.reason)
	}()
}

// allocPeerLocked hands out the lowest freed handle before minting new ones,
// matching the reuse behavior consumers must tolerate.
func (e *Endpoint) allocPeerLocked() net.Peer {
	if n := len(e.freePeers); n > 0 {
		peer := e.freePeers[n-1]
		e.freePeers = e.freePeers[:n-1]
		return peer
	}
	e.nextPeer++
	return e.nextPeer
}

// Stop tears down the listener and every live session.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	server := e.server
	sessions := make([]*session, 0, len(e.peers))
	for _, sess := range e.peers {
		sessions = append(sessions, sess)
	}
	e.mu.Unlock()

	for _, sess := range sessions {
		sess.close(net.ReasonShutdown)
	}
	if server != nil {
		server.Close()
	}
}

// Disconnect closes the dialed connection; for a client endpoint that is the
// whole session set.
func (e *Endpoint) Disconnect() {
	e.mu.Lock()
	sessions := make([]*session, 0, len(e.peers))
	for _, sess := range e.peers {
		sessions = append(sessions, sess)
	}
	e.mu.Unlock()
	for _, sess := range sessions {
		sess.close(net.ReasonClosed)
	}
}

// Poll drains queued events into the handlers. Non-blocking.
func (e *Endpoint) Poll(h net.Handlers) {
	e.events.Drain(h)
}

// SendToAll delivers the payload to every connected peer.
func (e *Endpoint) SendToAll(payload []byte, delivery net.Delivery) {
	e.mu.Lock()
	sessions := make([]*session, 0, len(e.peers))
	for _, sess := range e.peers {
		sessions = append(sessions, sess)
	}
	e.mu.Unlock()
	for _, sess := range sessions {
		sess.send(payload, delivery)
	}
}

// SendToPeer delivers the payload to one peer.
func (e *Endpoint) SendToPeer(peer net.Peer, payload []byte, delivery net.Delivery) error {
	e.mu.Lock()
	sess, ok := e.peers[peer]
	e.mu.Unlock()
	if !ok {
		return net.ErrUnknownPeer
	}
	sess.send(payload, delivery)
	return nil
}

// ClosePeer force-disconnects one peer.
func (e *Endpoint) ClosePeer(peer net.Peer, reason net.DisconnectReason) {
	e.mu.Lock()
	sess, ok := e.peers[peer]
	e.mu.Unlock()
	if ok {
		sess.close(reason)
	}
}

// DroppedPackets reports payloads discarded by the inbound rate limit.
func (e *Endpoint) DroppedPackets() int64 {
	return e.droppedPackets.Load()
}

// PeerCount reports the number of live sessions.
func (e *Endpoint) PeerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

var _ net.Transport = (*Endpoint)(nil)
