package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"lanternfall/internal/net"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 5 * time.Second
	maxPayloadSize = 1 << 16

	// reliableQueueSize is sized for several seconds of broadcast traffic; a
	// peer that cannot drain it is treated as dead rather than back-pressuring
	// the tick loop.
	reliableQueueSize   = 512
	unreliableQueueSize = 64
)

// session owns one websocket connection and its pumps. Delivery kinds map
// onto the underlying ordered stream: reliable payloads go through a bounded
// queue, unreliable payloads are dropped when the queue is full, and
// sequenced payloads collapse into a latest-wins slot per packet tag.
type session struct {
	peer net.Peer
	conn *websocket.Conn

	reliable   chan []byte
	unreliable chan []byte

	latestMu  sync.Mutex
	latest    map[byte][]byte
	latestHot chan struct{}

	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
	reason    net.DisconnectReason

	lastPingMu sync.Mutex
	lastPing   time.Time
}

func newSession(peer net.Peer, conn *websocket.Conn, limiter *rate.Limiter) *session {
	return &session{
		peer:       peer,
		conn:       conn,
		reliable:   make(chan []byte, reliableQueueSize),
		unreliable: make(chan []byte, unreliableQueueSize),
		latest:     make(map[byte][]byte),
		latestHot:  make(chan struct{}, 1),
		limiter:    limiter,
		closed:     make(chan struct{}),
	}
}

// send enqueues a payload according to its delivery kind. It never blocks the
// caller; slow reliable consumers are closed instead.
func (s *session) send(payload []byte, delivery net.Delivery) {
	switch delivery {
	case net.Reliable, net.ReliableOrdered:
		select {
		case s.reliable <- payload:
		case <-s.closed:
		default:
			s.close(net.ReasonOverflow)
		}
	case net.Unreliable:
		select {
		case s.unreliable <- payload:
		default:
			// Fire-and-forget: dropping is within contract.
		}
	case net.Sequenced:
		if len(payload) == 0 {
			return
		}
		s.latestMu.Lock()
		s.latest[payload[0]] = payload
		s.latestMu.Unlock()
		select {
		case s.latestHot <- struct{}{}:
		default:
		}
	}
}

func (s *session) takeLatest() [][]byte {
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	if len(s.latest) == 0 {
		return nil
	}
	batch := make([][]byte, 0, len(s.latest))
	for tag, payload := range s.latest {
		batch = append(batch, payload)
		delete(s.latest, tag)
	}
	return batch
}

func (s *session) close(reason net.DisconnectReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.closed)
		s.conn.Close()
	})
}

// writePump serializes all outbound traffic onto the connection. Sequenced
// slots are flushed ahead of the unreliable queue so stale positions never
// pile up behind fresher ones.
func (s *session) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer s.close(net.ReasonWriteErr)

	write := func(payload []byte) bool {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteMessage(websocket.BinaryMessage, payload) == nil
	}

	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.reliable:
			if !write(payload) {
				return
			}
		case <-s.latestHot:
			for _, payload := range s.takeLatest() {
				if !write(payload) {
					return
				}
			}
		case payload := <-s.unreliable:
			if !write(payload) {
				return
			}
		case now := <-ping.C:
			s.lastPingMu.Lock()
			s.lastPing = now
			s.lastPingMu.Unlock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if s.conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// readPump feeds inbound payloads into the shared event queue. Payloads
// beyond the per-peer rate limit are dropped before they reach game logic.
func (s *session) readPump(events *net.EventQueue, dropped func()) {
	defer s.close(net.ReasonReadErr)

	s.conn.SetReadLimit(maxPayloadSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.lastPingMu.Lock()
		sent := s.lastPing
		s.lastPingMu.Unlock()
		if !sent.IsZero() {
			events.PushLatency(s.peer, time.Since(sent).Milliseconds())
		}
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			if dropped != nil {
				dropped()
			}
			continue
		}
		events.PushData(s.peer, payload)
	}
}
