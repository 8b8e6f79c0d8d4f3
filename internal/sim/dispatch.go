package sim

import (
	"math"
	"time"

	"lanternfall/internal/net"
	"lanternfall/internal/wire"
	"lanternfall/internal/zone"
)

// HandleData decodes and dispatches one inbound payload. Unknown peers are
// tolerated (connect/disconnect races), malformed payloads are dropped, and
// tags a client has no business sending are ignored.
func (w *World) HandleData(peer net.Peer, payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.players[peer]
	if !ok {
		return
	}
	pkt, ok := wire.Decode(payload)
	if !ok {
		w.malformedPackets++
		return
	}

	switch msg := pkt.(type) {
	case wire.ZoneJoinRequest:
		w.handleZoneJoinLocked(state, msg)
	case wire.PlayerInput:
		w.handleInputLocked(state, msg)
	case wire.Shoot:
		w.handleShootLocked(state, msg)
	case wire.Roll:
		w.handleRollLocked(state)
	case wire.Heartbeat:
		w.handleHeartbeatLocked(state, msg)
	}
}

// handleZoneJoinLocked resolves a zone instance, assigns the stable network
// id, seeds the instance's lamps on first join, and replies with the spawn.
func (w *World) handleZoneJoinLocked(state *playerState, msg wire.ZoneJoinRequest) {
	zoneID := zone.ID(msg.ZoneID)
	if !w.knownZone(zoneID) {
		w.sendLocked(state.peer, wire.ZoneJoinResponse{}, net.ReliableOrdered)
		return
	}

	if state.joined {
		w.zones.Leave(state.zone)
	}
	key := w.zones.Join(zoneID)
	// Arriving players are the only source of instance pressure, so the
	// split check rides on the join itself.
	w.zones.TrySplit(key)

	if state.id == 0 {
		w.nextPlayerID++
		state.id = w.nextPlayerID
	}
	state.joined = true
	state.zone = key
	state.health = maxHealth
	state.x, state.y = w.spawnPointLocked()
	state.lastHeartbeat = w.now

	w.seedLampsLocked(key)

	w.sendLocked(state.peer, wire.ZoneJoinResponse{
		Success:    true,
		InstanceID: key.Instance,
		PlayerID:   state.id,
		SpawnX:     float32(state.x),
		SpawnY:     float32(state.y),
	}, net.ReliableOrdered)

	for _, lamp := range w.lamps[key] {
		w.sendLocked(state.peer, wire.LampSpawn{
			LampID: lamp.id,
			X:      float32(lamp.x),
			Y:      float32(lamp.y),
			Radius: float32(lamp.radius),
			IsOn:   lamp.on,
		}, net.ReliableOrdered)
	}

	w.record(eventJoin, state.id, uint32(key.Instance))
	w.logger.Infow("player joined zone",
		"player", state.id, "zone", key.Zone, "instance", key.Instance)
}

// lampLayout places the interactables of every instance; first joiner pays
// the seeding cost once per instance.
var lampLayout = []struct {
	x, y, radius float64
}{
	{200, 150, 16},
	{600, 150, 16},
	{400, 450, 16},
}

func (w *World) seedLampsLocked(key zone.InstanceKey) {
	if _, ok := w.lamps[key]; ok {
		return
	}
	lamps := make([]*lampState, 0, len(lampLayout))
	for _, spot := range lampLayout {
		w.nextLampID++
		lamps = append(lamps, &lampState{
			id:     w.nextLampID,
			zone:   key,
			x:      spot.x,
			y:      spot.y,
			radius: spot.radius,
			on:     true,
		})
	}
	w.lamps[key] = lamps
}

// handleInputLocked integrates one input exactly once at the fixed nominal
// delta, regardless of arrival jitter, then acknowledges its sequence.
func (w *World) handleInputLocked(state *playerState, msg wire.PlayerInput) {
	if !state.joined || state.dead() {
		return
	}

	dx := float64(msg.MoveX)
	dy := float64(msg.MoveY)
	if length := math.Hypot(dx, dy); length > 1 {
		dx /= length
		dy /= length
	}

	multiplier := 1.0
	if state.rolling() {
		multiplier = rollSpeedMultiplier
	}
	delta := 1.0 / float64(w.cfg.TickRate)
	state.x = clamp(state.x+dx*moveSpeed*multiplier*delta, 0, worldWidth)
	state.y = clamp(state.y+dy*moveSpeed*multiplier*delta, 0, worldHeight)

	if msg.Sequence > state.lastAck {
		state.lastAck = msg.Sequence
	}
}

// handleShootLocked spawns a projectile toward the target point. Targets
// closer than one unit are rejected to keep the direction well-defined.
func (w *World) handleShootLocked(state *playerState, msg wire.Shoot) {
	if !state.joined || state.dead() {
		return
	}

	dirX := float64(msg.TargetX) - state.x
	dirY := float64(msg.TargetY) - state.y
	distance := math.Hypot(dirX, dirY)
	if distance < minShootDistance {
		return
	}

	w.nextProjectileID++
	proj := &projectileState{
		id:    w.nextProjectileID,
		owner: state.id,
		zone:  state.zone,
		x:     state.x,
		y:     state.y,
		velX:  dirX / distance * projectileSpeed,
		velY:  dirY / distance * projectileSpeed,
	}
	w.projectiles = append(w.projectiles, proj)

	w.broadcastLocked(state.zone, wire.ProjectileSpawn{
		ProjectileID: proj.id,
		OwnerID:      proj.owner,
		X:            float32(proj.x),
		Y:            float32(proj.y),
		VelX:         float32(proj.velX),
		VelY:         float32(proj.velY),
	}, net.ReliableOrdered)
	w.record(eventShoot, state.id, proj.id)
}

// handleRollLocked activates the burst-movement ability unless it is already
// active, cooling down, or the player is dead.
func (w *World) handleRollLocked(state *playerState) {
	if !state.joined || state.dead() || state.rolling() || state.cooldownRemaining > 0 {
		return
	}
	state.rollRemaining = rollDuration
	w.broadcastLocked(state.zone, wire.RollState{PlayerID: state.id, IsRolling: true}, net.ReliableOrdered)
	w.record(eventRoll, state.id, 1)
}

// handleHeartbeatLocked refreshes liveness and echoes the client timestamp so
// the client can measure round-trip time.
func (w *World) handleHeartbeatLocked(state *playerState, msg wire.Heartbeat) {
	state.lastHeartbeat = w.now
	if msg.ClientTime > 0 {
		state.rtt = time.Duration(w.now.UnixMilli()-msg.ClientTime) * time.Millisecond
	}
	w.sendLocked(state.peer, msg, net.Unreliable)
}

// sendLocked encodes and transmits to one peer. Transport errors mean the
// peer is on its way out; the disconnect event will clean up.
func (w *World) sendLocked(peer net.Peer, pkt wire.Packet, delivery net.Delivery) {
	if err := w.transport.SendToPeer(peer, pkt.Encode(), delivery); err != nil {
		w.logger.Debugw("send failed", "peer", peer, "error", err)
	}
}

// broadcastLocked transmits to every joined player in a zone instance.
func (w *World) broadcastLocked(key zone.InstanceKey, pkt wire.Packet, delivery net.Delivery) {
	payload := pkt.Encode()
	for _, member := range w.players {
		if member.joined && member.zone == key {
			if err := w.transport.SendToPeer(member.peer, payload, delivery); err != nil {
				w.logger.Debugw("broadcast send failed", "peer", member.peer, "error", err)
			}
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// spawnPointLocked jitters the default spawn so respawned players do not
// stack on one point.
func (w *World) spawnPointLocked() (float64, float64) {
	x := defaultSpawnX + (w.rng.Float64()*2-1)*spawnJitter
	y := defaultSpawnY + (w.rng.Float64()*2-1)*spawnJitter
	return clamp(x, 0, worldWidth), clamp(y, 0, worldHeight)
}
