package net

import "sync"

type eventKind int

const (
	eventConnected eventKind = iota
	eventDisconnected
	eventData
	eventLatency
)

type event struct {
	kind    eventKind
	peer    Peer
	payload []byte
	reason  DisconnectReason
	millis  int64
}

// EventQueue is the inbound boundary between transport goroutines and the
// single game-logic context. Producers push from any goroutine; Drain hands
// the batch to exactly one consumer. Handlers therefore never re-enter the
// transport's read path, even if they trigger sends.
type EventQueue struct {
	mu     sync.Mutex
	events []event
}

func (q *EventQueue) PushConnected(peer Peer) {
	q.push(event{kind: eventConnected, peer: peer})
}

func (q *EventQueue) PushDisconnected(peer Peer, reason DisconnectReason) {
	q.push(event{kind: eventDisconnected, peer: peer, reason: reason})
}

func (q *EventQueue) PushData(peer Peer, payload []byte) {
	q.push(event{kind: eventData, peer: peer, payload: payload})
}

func (q *EventQueue) PushLatency(peer Peer, millis int64) {
	q.push(event{kind: eventLatency, peer: peer, millis: millis})
}

func (q *EventQueue) push(ev event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain removes all queued events and invokes the matching handlers in
// arrival order.
func (q *EventQueue) Drain(h Handlers) {
	q.mu.Lock()
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	for _, ev := range batch {
		switch ev.kind {
		case eventConnected:
			if h.PeerConnected != nil {
				h.PeerConnected(ev.peer)
			}
		case eventDisconnected:
			if h.PeerDisconnected != nil {
				h.PeerDisconnected(ev.peer, ev.reason)
			}
		case eventData:
			if h.Data != nil {
				h.Data(ev.peer, ev.payload)
			}
		case eventLatency:
			if h.LatencyUpdated != nil {
				h.LatencyUpdated(ev.peer, ev.millis)
			}
		}
	}
}
