package client

import (
	"math"
	"testing"
	"time"

	"lanternfall/internal/net"
	"lanternfall/internal/wire"
)

type sentPacket struct {
	payload  []byte
	delivery net.Delivery
}

// scriptedTransport feeds queued server events to Poll and records what the
// session transmits.
type scriptedTransport struct {
	events []func(net.Handlers)
	sent   []sentPacket
}

func (f *scriptedTransport) Start(int) error           { return nil }
func (f *scriptedTransport) Stop()                     {}
func (f *scriptedTransport) Connect(string, int) error { return nil }
func (f *scriptedTransport) Disconnect()               {}

func (f *scriptedTransport) Poll(h net.Handlers) {
	pending := f.events
	f.events = nil
	for _, deliver := range pending {
		deliver(h)
	}
}

func (f *scriptedTransport) SendToAll(payload []byte, delivery net.Delivery) {
	f.sent = append(f.sent, sentPacket{payload: payload, delivery: delivery})
}

func (f *scriptedTransport) SendToPeer(_ net.Peer, payload []byte, delivery net.Delivery) error {
	f.SendToAll(payload, delivery)
	return nil
}

func (f *scriptedTransport) ClosePeer(net.Peer, net.DisconnectReason) {}

func (f *scriptedTransport) connect() {
	f.events = append(f.events, func(h net.Handlers) {
		if h.PeerConnected != nil {
			h.PeerConnected(1)
		}
	})
}

func (f *scriptedTransport) deliver(p wire.Packet) {
	payload := p.Encode()
	f.events = append(f.events, func(h net.Handlers) {
		if h.Data != nil {
			h.Data(1, payload)
		}
	})
}

func (f *scriptedTransport) sentPackets() []wire.Packet {
	var out []wire.Packet
	for _, s := range f.sent {
		if pkt, ok := wire.Decode(s.payload); ok {
			out = append(out, pkt)
		}
	}
	return out
}

func newJoinedSession(t *testing.T) (*Session, *scriptedTransport, time.Time) {
	t.Helper()
	transport := &scriptedTransport{}
	session := NewSession(transport, Config{ZoneID: 1})
	now := time.Now()

	transport.connect()
	transport.deliver(wire.ZoneJoinResponse{
		Success:    true,
		InstanceID: 1,
		PlayerID:   7,
		SpawnX:     400,
		SpawnY:     300,
	})
	session.Update(0.016, Input{}, now)

	if !session.Joined() {
		t.Fatalf("expected session to be joined after handshake")
	}
	transport.sent = nil
	return session, transport, now
}

func TestConnectSendsZoneJoinRequest(t *testing.T) {
	transport := &scriptedTransport{}
	session := NewSession(transport, Config{ZoneID: 3})

	transport.connect()
	session.Update(0.016, Input{}, time.Now())

	packets := transport.sentPackets()
	if len(packets) != 1 {
		t.Fatalf("expected exactly one packet after connect, got %d", len(packets))
	}
	request, ok := packets[0].(wire.ZoneJoinRequest)
	if !ok || request.ZoneID != 3 {
		t.Fatalf("expected zone join request for zone 3, got %#v", packets[0])
	}
	if transport.sent[0].delivery != net.ReliableOrdered {
		t.Fatalf("join request must be reliable-ordered")
	}
}

func TestJoinFailureIsSurfaced(t *testing.T) {
	transport := &scriptedTransport{}
	session := NewSession(transport, Config{ZoneID: 9})

	transport.connect()
	transport.deliver(wire.ZoneJoinResponse{Success: false})
	session.Update(0.016, Input{}, time.Now())

	if session.Joined() || !session.JoinFailed() {
		t.Fatalf("expected a rejected join to be surfaced")
	}
}

func TestInputIsPredictedAndSentSequenced(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	session.Update(0.016, Input{MoveX: 1}, now)

	x, y := session.Position()
	if math.Abs(x-(400+200.0/60)) > 1e-6 || y != 300 {
		t.Fatalf("expected predicted position (%f, 300), got (%f, %f)", 400+200.0/60, x, y)
	}

	var input wire.PlayerInput
	found := false
	for i, pkt := range transport.sentPackets() {
		if p, ok := pkt.(wire.PlayerInput); ok {
			input = p
			found = true
			if transport.sent[i].delivery != net.Sequenced {
				t.Fatalf("player input must be sequenced")
			}
		}
	}
	if !found || input.Sequence != 1 || input.MoveX != 1 {
		t.Fatalf("expected input with sequence 1 and moveX 1, got %#v", input)
	}
}

func TestShootAndRollAreReliableOrdered(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	session.Update(0.016, Input{Shoot: true, TargetX: 500, TargetY: 300, Roll: true}, now)

	sawShoot, sawRoll := false, false
	for i, pkt := range transport.sentPackets() {
		switch pkt.(type) {
		case wire.Shoot, wire.Roll:
			if transport.sent[i].delivery != net.ReliableOrdered {
				t.Fatalf("action packets must be reliable-ordered")
			}
		}
		if shot, ok := pkt.(wire.Shoot); ok {
			sawShoot = shot.TargetX == 500 && shot.TargetY == 300
		}
		if _, ok := pkt.(wire.Roll); ok {
			sawRoll = true
		}
	}
	if !sawShoot || !sawRoll {
		t.Fatalf("expected shoot and roll to be transmitted")
	}
}

func TestSnapshotReconcilesSelfAndObservesOthers(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	session.Update(0.016, Input{MoveX: 1}, now) // seq 1, position 403.33

	transport.deliver(wire.WorldSnapshot{
		AckSequence: 1,
		Players: []wire.SnapshotPlayer{
			{PlayerID: 7, X: float32(400 + 200.0/60), Y: 300, Health: 100},
			{PlayerID: 8, X: 100, Y: 100, Health: 60},
		},
	})
	session.Update(0.016, Input{}, now)

	x, y := session.Position()
	if math.Abs(x-(400+200.0/60)) > 1e-4 || y != 300 {
		t.Fatalf("exact server echo must not correct, got (%f, %f)", x, y)
	}

	remote, ok := session.Remotes().Get(8)
	if !ok {
		t.Fatalf("expected remote player 8 to be mirrored")
	}
	if remote.Health != 60 {
		t.Fatalf("expected remote health 60, got %d", remote.Health)
	}
	if _, tracked := session.Remotes().Get(7); tracked {
		t.Fatalf("the controlled player must never enter the remote mirror")
	}
}

func TestDeathStopsIntentUntilRespawn(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	transport.deliver(wire.PlayerDeath{PlayerID: 7, KillerID: 2})
	session.Update(0.016, Input{MoveX: 1}, now)

	if !session.Dead() || session.Health() != 0 {
		t.Fatalf("expected dead state after death event")
	}
	for _, pkt := range transport.sentPackets() {
		if _, ok := pkt.(wire.PlayerInput); ok {
			t.Fatalf("dead players must not transmit input")
		}
	}

	// A snapshot showing restored health at a new position is the respawn.
	transport.deliver(wire.WorldSnapshot{
		AckSequence: 0,
		Players:     []wire.SnapshotPlayer{{PlayerID: 7, X: 250, Y: 220, Health: 100}},
	})
	session.Update(0.016, Input{}, now)

	if session.Dead() {
		t.Fatalf("expected respawn to clear the dead state")
	}
	if x, y := session.Position(); x != 250 || y != 220 {
		t.Fatalf("expected respawn position (250, 220), got (%f, %f)", x, y)
	}
}

func TestRespawnPreservesSequenceStream(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	for i := 0; i < 3; i++ {
		session.Update(0.016, Input{MoveX: 1}, now)
	}

	transport.deliver(wire.PlayerDeath{PlayerID: 7, KillerID: 2})
	session.Update(0.016, Input{}, now)
	transport.deliver(wire.WorldSnapshot{
		AckSequence: 3,
		Players:     []wire.SnapshotPlayer{{PlayerID: 7, X: 250, Y: 220, Health: 100}},
	})
	session.Update(0.016, Input{}, now)

	transport.sent = nil
	session.Update(0.016, Input{MoveX: 1}, now)

	var sequence uint32
	for _, pkt := range transport.sentPackets() {
		if input, ok := pkt.(wire.PlayerInput); ok {
			sequence = input.Sequence
		}
	}
	if sequence != 4 {
		t.Fatalf("sequences must stay monotonic across respawn, got %d after 3", sequence)
	}
}

func TestRollIsPredictedAtSend(t *testing.T) {
	session, _, now := newJoinedSession(t)

	session.Update(1.0/60, Input{MoveX: 1, Roll: true}, now)

	x, _ := session.Position()
	want := 400 + 200.0*1.8/60
	if math.Abs(x-want) > 1e-6 {
		t.Fatalf("the request frame must integrate at roll speed, expected %f, got %f", want, x)
	}
}

func TestPredictedRollExpires(t *testing.T) {
	session, _, now := newJoinedSession(t)

	session.Update(1.0/60, Input{Roll: true}, now)
	for i := 0; i < 31; i++ {
		session.Update(1.0/60, Input{}, now)
	}
	session.Update(1.0/60, Input{MoveX: 1}, now)

	x, _ := session.Position()
	want := 400 + 200.0/60
	if math.Abs(x-want) > 1e-6 {
		t.Fatalf("an expired roll must integrate at base speed, expected %f, got %f", want, x)
	}
}

func TestLampLifecycle(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	transport.deliver(wire.LampSpawn{LampID: 3, X: 200, Y: 150, Radius: 16, IsOn: true})
	session.Update(0.016, Input{}, now)

	lamp, ok := session.Lamps()[3]
	if !ok || !lamp.IsOn {
		t.Fatalf("expected lamp 3 to spawn lit")
	}

	transport.deliver(wire.LampState{LampID: 3, IsOn: false})
	session.Update(0.016, Input{}, now)
	if lamp.IsOn {
		t.Fatalf("expected lamp 3 to be toggled off")
	}
}

func TestProjectilesAdvanceAndExpire(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	transport.deliver(wire.ProjectileSpawn{
		ProjectileID: 5, OwnerID: 8,
		X: 100, Y: 100, VelX: 500, VelY: 0,
	})
	session.Update(0.1, Input{}, now)

	projectile, ok := session.Projectiles()[5]
	if !ok {
		t.Fatalf("expected projectile 5 to be tracked")
	}
	if math.Abs(projectile.X-150) > 1e-9 {
		t.Fatalf("expected projectile at x=150 after 0.1s, got %f", projectile.X)
	}

	for i := 0; i < 30; i++ {
		session.Update(0.1, Input{}, now)
	}
	if _, alive := session.Projectiles()[5]; alive {
		t.Fatalf("expected projectile to expire after its lifetime")
	}
}

func TestHeartbeatCadence(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	session.Update(0.016, Input{}, now.Add(time.Second))
	session.Update(0.016, Input{}, now.Add(2500*time.Millisecond))
	session.Update(0.016, Input{}, now.Add(5*time.Second))

	beats := 0
	for i, pkt := range transport.sentPackets() {
		if _, ok := pkt.(wire.Heartbeat); ok {
			beats++
			if transport.sent[i].delivery != net.Unreliable {
				t.Fatalf("heartbeats must be unreliable")
			}
		}
	}
	if beats != 2 {
		t.Fatalf("expected 2 heartbeats across 3 seconds, got %d", beats)
	}
}

func TestRollStateTogglesPredictionMultiplier(t *testing.T) {
	session, transport, now := newJoinedSession(t)

	transport.deliver(wire.RollState{PlayerID: 7, IsRolling: true})
	session.Update(0.016, Input{MoveX: 1}, now)

	x, _ := session.Position()
	want := 400 + 200.0*1.8/60
	if math.Abs(x-want) > 1e-6 {
		t.Fatalf("expected rolled prediction %f, got %f", want, x)
	}
}
