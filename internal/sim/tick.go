package sim

import (
	"math"
	"time"

	"lanternfall/internal/net"
	"lanternfall/internal/wire"
	"lanternfall/internal/zone"
)

// Run drives the authoritative loop until stop closes. Each outer iteration
// polls the transport once, then advances the simulation in discrete fixed
// steps using a wall-clock accumulator; the remainder carries over so
// simulation cadence stays decoupled from scheduler jitter.
func (w *World) Run(stop <-chan struct{}) {
	interval := time.Second / time.Duration(w.cfg.TickRate)
	fixedDelta := 1.0 / float64(w.cfg.TickRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	accumulator := 0.0
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			w.transport.Poll(w.Handlers())

			accumulator += now.Sub(last).Seconds()
			last = now
			// Cap the backlog so a long stall cannot spiral the loop.
			if limit := 5 * fixedDelta; accumulator > limit {
				accumulator = limit
			}
			for accumulator >= fixedDelta {
				w.Step(now, fixedDelta)
				accumulator -= fixedDelta
			}
		}
	}
}

// Step advances the world by exactly one fixed tick.
func (w *World) Step(now time.Time, dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.now = now
	w.currentTick++

	w.pruneStaleConnectionsLocked(now)
	w.advanceProjectilesLocked(dt)
	w.advanceAbilityTimersLocked(dt)
	w.advanceRespawnsLocked(dt)
	w.advanceLampsLocked(dt)

	if w.currentTick%mergeEveryTicks == 0 {
		for _, id := range w.cfg.ZoneIDs {
			w.zones.TryMerge(id)
		}
	}

	if w.currentTick%snapshotEveryTicks == 0 {
		w.broadcastSnapshotsLocked()
	}
}

// pruneStaleConnectionsLocked force-disconnects peers whose heartbeats went
// silent. The transport's disconnect event performs the registry removal.
func (w *World) pruneStaleConnectionsLocked(now time.Time) {
	for peer, state := range w.players {
		if now.Sub(state.lastHeartbeat) > disconnectAfter {
			w.logger.Infow("disconnecting silent peer", "peer", peer, "player", state.id)
			w.transport.ClosePeer(peer, net.ReasonTimeout)
		}
	}
}

// advanceProjectilesLocked integrates projectile motion and resolves removal:
// out of bounds, lifetime exceeded, or collision, whichever happens first.
func (w *World) advanceProjectilesLocked(dt float64) {
	live := w.projectiles[:0]
	for _, proj := range w.projectiles {
		proj.x += proj.velX * dt
		proj.y += proj.velY * dt
		proj.age += dt

		if proj.x < 0 || proj.x > worldWidth || proj.y < 0 || proj.y > worldHeight {
			continue
		}
		if proj.age > projectileLifetime {
			continue
		}
		if w.resolveProjectileHitLocked(proj) {
			continue
		}
		live = append(live, proj)
	}
	// Zero the tail so removed projectiles do not linger in the backing array.
	for i := len(live); i < len(w.projectiles); i++ {
		w.projectiles[i] = nil
	}
	w.projectiles = live
}

// resolveProjectileHitLocked tests circle-circle collision against non-owner
// living players, then against lit lamps. It reports whether the projectile
// was consumed.
func (w *World) resolveProjectileHitLocked(proj *projectileState) bool {
	for _, target := range w.playersInLocked(proj.zone) {
		if target.id == proj.owner || target.dead() {
			continue
		}
		if math.Hypot(target.x-proj.x, target.y-proj.y) > hitRadius {
			continue
		}
		w.applyHitLocked(target, proj.owner)
		return true
	}

	for _, lamp := range w.lamps[proj.zone] {
		if !lamp.on {
			continue
		}
		if math.Hypot(lamp.x-proj.x, lamp.y-proj.y) > hitRadius+lamp.radius {
			continue
		}
		lamp.on = false
		lamp.restore = lampRestoreSeconds
		w.broadcastLocked(proj.zone, wire.LampState{LampID: lamp.id, IsOn: false}, net.ReliableOrdered)
		w.record(eventLamp, lamp.id, 0)
		return true
	}
	return false
}

// applyHitLocked applies damage, reduced while the target's roll is active,
// and schedules a respawn on death.
func (w *World) applyHitLocked(target *playerState, shooter uint32) {
	damage := projectileDamage
	if target.rolling() {
		damage = int(float64(projectileDamage) * rollDamageFactor)
	}
	target.health -= damage
	if target.health < 0 {
		target.health = 0
	}

	w.broadcastLocked(target.zone, wire.PlayerHit{
		PlayerID:  target.id,
		Health:    int32(target.health),
		ShooterID: shooter,
	}, net.ReliableOrdered)
	w.record(eventHit, target.id, uint32(target.health))

	if target.dead() {
		target.respawnRemaining = respawnDelay
		w.broadcastLocked(target.zone, wire.PlayerDeath{
			PlayerID: target.id,
			KillerID: shooter,
		}, net.ReliableOrdered)
		w.record(eventDeath, target.id, shooter)
	}
}

// advanceAbilityTimersLocked winds down roll durations and cooldowns,
// broadcasting the transition when a roll ends.
func (w *World) advanceAbilityTimersLocked(dt float64) {
	for _, state := range w.players {
		if state.rollRemaining > 0 {
			state.rollRemaining -= dt
			if state.rollRemaining <= 0 {
				state.rollRemaining = 0
				state.cooldownRemaining = rollCooldownSeconds
				if state.joined {
					w.broadcastLocked(state.zone, wire.RollState{
						PlayerID:  state.id,
						IsRolling: false,
					}, net.ReliableOrdered)
				}
			}
		} else if state.cooldownRemaining > 0 {
			state.cooldownRemaining -= dt
			if state.cooldownRemaining < 0 {
				state.cooldownRemaining = 0
			}
		}
	}
}

// advanceRespawnsLocked counts down dead players and revives them at a
// jittered spawn point with full health.
func (w *World) advanceRespawnsLocked(dt float64) {
	for _, state := range w.players {
		if !state.dead() || state.respawnRemaining <= 0 {
			continue
		}
		state.respawnRemaining -= dt
		if state.respawnRemaining > 0 {
			continue
		}
		state.respawnRemaining = 0
		state.health = maxHealth
		state.x, state.y = w.spawnPointLocked()
		w.record(eventRespawn, state.id, 0)
	}
}

// advanceLampsLocked restores toggled-off lamps after their timer runs out.
func (w *World) advanceLampsLocked(dt float64) {
	for key, lamps := range w.lamps {
		for _, lamp := range lamps {
			if lamp.on || lamp.restore <= 0 {
				continue
			}
			lamp.restore -= dt
			if lamp.restore > 0 {
				continue
			}
			lamp.restore = 0
			lamp.on = true
			w.broadcastLocked(key, wire.LampState{LampID: lamp.id, IsOn: true}, net.ReliableOrdered)
			w.record(eventLamp, lamp.id, 1)
		}
	}
}

// broadcastSnapshotsLocked sends one personalized snapshot per joined player:
// the recipient's own last-acknowledged input sequence plus everyone sharing
// its zone instance.
func (w *World) broadcastSnapshotsLocked() {
	byInstance := make(map[zone.InstanceKey][]wire.SnapshotPlayer)

	for _, state := range w.players {
		if !state.joined {
			continue
		}
		key := state.zone
		if _, ok := byInstance[key]; !ok {
			var entries []wire.SnapshotPlayer
			for _, member := range w.playersInLocked(state.zone) {
				entries = append(entries, wire.SnapshotPlayer{
					PlayerID: member.id,
					X:        float32(member.x),
					Y:        float32(member.y),
					Health:   int32(member.health),
				})
			}
			byInstance[key] = entries
		}

		snapshot := wire.WorldSnapshot{
			AckSequence: state.lastAck,
			Players:     byInstance[key],
		}
		w.sendLocked(state.peer, snapshot, net.Sequenced)
	}
}
