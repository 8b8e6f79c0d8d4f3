// Package client implements the game-facing side of a connection: it owns a
// transport endpoint, runs local prediction for the controlled player, and
// mirrors the authoritative world from snapshots. A rendering host calls
// Update once per frame and reads the resulting view.
package client

import (
	"time"

	"go.uber.org/zap"

	"lanternfall/internal/net"
	"lanternfall/internal/predict"
	"lanternfall/internal/wire"
)

const (
	heartbeatInterval = 2 * time.Second

	// projectileLifetime mirrors the authoritative expiry so the local
	// render does not outlive the server's projectile.
	projectileLifetime = 3.0

	// rollDuration mirrors the authoritative ability length; the roll is
	// predicted locally and the server broadcast confirms or corrects it.
	rollDuration = 0.5
)

// Lamp is the client view of one interactable light.
type Lamp struct {
	LampID uint32
	X, Y   float32
	Radius float32
	IsOn   bool
}

// Projectile is the client view of one in-flight projectile, advanced
// locally between authoritative events.
type Projectile struct {
	ProjectileID uint32
	OwnerID      uint32
	X, Y         float64
	VelX, VelY   float64
	Age          float64
}

// Input is one frame of player intent collected by the host.
type Input struct {
	MoveX, MoveY float64

	Shoot            bool
	TargetX, TargetY float32

	Roll bool
}

// Config parameterizes a session.
type Config struct {
	ZoneID int32
	Logger *zap.SugaredLogger
}

// Session is a connected client. It is not safe for concurrent use; the host
// drives it from a single frame loop.
type Session struct {
	transport net.Transport
	cfg       Config
	log       *zap.SugaredLogger

	predictor *predict.Predictor
	remotes   *predict.RemoteSet

	connected  bool
	joined     bool
	joinFailed bool
	playerID   uint32
	instanceID int32
	health     int32
	dead       bool

	lamps       map[uint32]*Lamp
	projectiles map[uint32]*Projectile

	// rollRemaining drives the locally-predicted burst window until the
	// authoritative broadcast confirms or ends it.
	rollRemaining float64

	lastHeartbeat time.Time
	rtt           int64
}

// NewSession wraps an already-constructed transport. The caller remains
// responsible for Connect and Disconnect ordering around the session's life.
func NewSession(transport net.Transport, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Session{
		transport:   transport,
		cfg:         cfg,
		log:         log,
		remotes:     predict.NewRemoteSet(),
		lamps:       make(map[uint32]*Lamp),
		projectiles: make(map[uint32]*Projectile),
	}
}

// Update runs one client frame: drain transport events, transmit intent,
// and advance local simulation state by frameDelta seconds.
func (s *Session) Update(frameDelta float64, input Input, now time.Time) {
	s.transport.Poll(net.Handlers{
		PeerConnected:    s.handleConnected,
		PeerDisconnected: s.handleDisconnected,
		Data:             s.handleData,
		LatencyUpdated:   s.handleLatency,
	})

	if s.connected && s.joined {
		s.sendIntent(input)
		s.maybeHeartbeat(now)
	}

	if s.rollRemaining > 0 {
		s.rollRemaining -= frameDelta
		if s.rollRemaining <= 0 {
			s.rollRemaining = 0
			s.predictor.SetRolling(false)
		}
	}

	s.remotes.Advance(frameDelta, now)
	s.advanceProjectiles(frameDelta)
}

func (s *Session) sendIntent(input Input) {
	if s.dead {
		return
	}

	// The roll is predicted before movement so the request frame already
	// integrates at the boosted speed, matching the server's own ordering.
	if input.Roll {
		s.transport.SendToAll(wire.Roll{}.Encode(), net.ReliableOrdered)
		s.predictor.SetRolling(true)
		s.rollRemaining = rollDuration
	}

	// Idle frames carry no movement; the server integrates per arriving
	// input, so there is nothing to transmit or predict.
	if input.MoveX != 0 || input.MoveY != 0 {
		record := s.predictor.Predict(input.MoveX, input.MoveY)
		packet := wire.PlayerInput{
			MoveX:    float32(record.MoveX),
			MoveY:    float32(record.MoveY),
			Sequence: record.Sequence,
		}
		s.transport.SendToAll(packet.Encode(), net.Sequenced)
	}

	if input.Shoot {
		shot := wire.Shoot{TargetX: input.TargetX, TargetY: input.TargetY}
		s.transport.SendToAll(shot.Encode(), net.ReliableOrdered)
	}
}

func (s *Session) maybeHeartbeat(now time.Time) {
	if now.Sub(s.lastHeartbeat) < heartbeatInterval {
		return
	}
	s.lastHeartbeat = now
	beat := wire.Heartbeat{ClientTime: now.UnixMilli()}
	s.transport.SendToAll(beat.Encode(), net.Unreliable)
}

func (s *Session) advanceProjectiles(frameDelta float64) {
	for id, projectile := range s.projectiles {
		projectile.Age += frameDelta
		if projectile.Age >= projectileLifetime {
			delete(s.projectiles, id)
			continue
		}
		projectile.X += projectile.VelX * frameDelta
		projectile.Y += projectile.VelY * frameDelta
	}
}

func (s *Session) handleConnected(net.Peer) {
	s.connected = true
	request := wire.ZoneJoinRequest{ZoneID: s.cfg.ZoneID}
	s.transport.SendToAll(request.Encode(), net.ReliableOrdered)
}

func (s *Session) handleDisconnected(_ net.Peer, reason net.DisconnectReason) {
	s.log.Infow("disconnected from server", "reason", string(reason))
	s.connected = false
	s.joined = false
}

func (s *Session) handleLatency(_ net.Peer, millis int64) {
	s.rtt = millis
}

func (s *Session) handleData(_ net.Peer, payload []byte) {
	packet, ok := wire.Decode(payload)
	if !ok {
		s.log.Warnw("discarding malformed server packet", "bytes", len(payload))
		return
	}

	switch p := packet.(type) {
	case wire.ZoneJoinResponse:
		s.handleJoinResponse(p)
	case wire.WorldSnapshot:
		s.handleSnapshot(p)
	case wire.ProjectileSpawn:
		s.projectiles[p.ProjectileID] = &Projectile{
			ProjectileID: p.ProjectileID,
			OwnerID:      p.OwnerID,
			X:            float64(p.X),
			Y:            float64(p.Y),
			VelX:         float64(p.VelX),
			VelY:         float64(p.VelY),
		}
	case wire.PlayerHit:
		if p.PlayerID == s.playerID {
			s.health = p.Health
		}
	case wire.PlayerDeath:
		if p.PlayerID == s.playerID {
			s.dead = true
			s.health = 0
			s.rollRemaining = 0
		}
	case wire.RollState:
		if p.PlayerID == s.playerID {
			s.predictor.SetRolling(p.IsRolling)
			if p.IsRolling {
				// Keep a prediction already in flight; only arm the timer
				// when the roll was not anticipated locally.
				if s.rollRemaining <= 0 {
					s.rollRemaining = rollDuration
				}
			} else {
				s.rollRemaining = 0
			}
		}
	case wire.LampSpawn:
		s.lamps[p.LampID] = &Lamp{
			LampID: p.LampID,
			X:      p.X,
			Y:      p.Y,
			Radius: p.Radius,
			IsOn:   p.IsOn,
		}
	case wire.LampState:
		if lamp, ok := s.lamps[p.LampID]; ok {
			lamp.IsOn = p.IsOn
		}
	case wire.Heartbeat:
		s.rtt = time.Now().UnixMilli() - p.ClientTime
	}
}

func (s *Session) handleJoinResponse(p wire.ZoneJoinResponse) {
	if !p.Success {
		s.joinFailed = true
		s.log.Warnw("zone join rejected", "zone", s.cfg.ZoneID)
		return
	}
	s.joined = true
	s.playerID = p.PlayerID
	s.instanceID = p.InstanceID
	s.health = 100
	if s.predictor == nil {
		s.predictor = predict.NewPredictor(float64(p.SpawnX), float64(p.SpawnY))
	} else {
		// Re-joins keep the sequence stream; the server's ack for this
		// connection never resets.
		s.predictor.Reset(float64(p.SpawnX), float64(p.SpawnY))
	}
	s.log.Infow("joined zone",
		"zone", s.cfg.ZoneID,
		"instance", p.InstanceID,
		"player", p.PlayerID)
}

func (s *Session) handleSnapshot(p wire.WorldSnapshot) {
	if !s.joined {
		return
	}
	now := time.Now()
	for _, entry := range p.Players {
		if entry.PlayerID == s.playerID {
			s.health = entry.Health
			if s.dead && entry.Health > 0 {
				// Server revived us; adopt the respawn point outright. The
				// sequence counter survives, the server's ack does not reset.
				s.dead = false
				s.predictor.Reset(float64(entry.X), float64(entry.Y))
				continue
			}
			s.predictor.Reconcile(p.AckSequence, float64(entry.X), float64(entry.Y))
			continue
		}
		s.remotes.Observe(entry.PlayerID, float64(entry.X), float64(entry.Y), entry.Health, now)
	}
}

// Joined reports whether the zone join handshake completed.
func (s *Session) Joined() bool { return s.joined }

// JoinFailed reports a rejected zone join.
func (s *Session) JoinFailed() bool { return s.joinFailed }

// PlayerID is the server-assigned stable identity, valid once joined.
func (s *Session) PlayerID() uint32 { return s.playerID }

// Position is the predicted render position of the controlled player.
func (s *Session) Position() (float64, float64) {
	if s.predictor == nil {
		return 0, 0
	}
	return s.predictor.Position()
}

// Health is the last authoritative health value for the controlled player.
func (s *Session) Health() int32 { return s.health }

// Dead reports whether the controlled player is awaiting respawn.
func (s *Session) Dead() bool { return s.dead }

// RTT is the last measured round trip in milliseconds.
func (s *Session) RTT() int64 { return s.rtt }

// PredictionError reports the error magnitude measured by the most recent
// reconciliation, in world units.
func (s *Session) PredictionError() float64 {
	if s.predictor == nil {
		return 0
	}
	return s.predictor.LastError()
}

// Remotes exposes the interpolated mirror of other players.
func (s *Session) Remotes() *predict.RemoteSet { return s.remotes }

// Lamps returns the known lamps; callers must not mutate the map.
func (s *Session) Lamps() map[uint32]*Lamp { return s.lamps }

// Projectiles returns in-flight projectiles; callers must not mutate the map.
func (s *Session) Projectiles() map[uint32]*Projectile { return s.projectiles }
