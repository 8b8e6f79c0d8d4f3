// Package sim is the server's authoritative core: the connection registry,
// packet dispatch, and the fixed-rate tick loop that advances players,
// projectiles, and lamps before broadcasting personalized snapshots.
//
// Every mutation (registry changes, packet handling, the tick itself)
// runs under the single World mutex, so no two mutations ever interleave.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"lanternfall/internal/net"
	"lanternfall/internal/zone"
)

// Config tunes a world. Zero values fall back to defaults via normalized().
type Config struct {
	TickRate          int
	MaxPlayersPerZone int
	// ZoneIDs lists the zones join requests may target. A request outside
	// the set gets an explicit failure response.
	ZoneIDs []zone.ID
	// Seed fixes the respawn-jitter RNG; zero derives one from the clock.
	Seed int64
	// ReplayPath enables tick-event recording when non-empty.
	ReplayPath string

	Logger *zap.SugaredLogger
}

func (c Config) normalized() Config {
	if c.TickRate <= 0 {
		c.TickRate = defaultTickRate
	}
	if c.MaxPlayersPerZone <= 0 {
		c.MaxPlayersPerZone = defaultMaxPlayersPerZone
	}
	if len(c.ZoneIDs) == 0 {
		c.ZoneIDs = []zone.ID{1, 2, 3}
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// playerState is the authoritative record for one connection. It is keyed by
// transport peer handle; ID is the stable network id handed out on zone join,
// since peer handles are recycled.
type playerState struct {
	peer   net.Peer
	id     uint32
	joined bool
	zone   zone.InstanceKey

	x, y   float64
	health int

	lastAck uint32

	rollRemaining     float64
	cooldownRemaining float64
	respawnRemaining  float64

	lastHeartbeat time.Time
	rtt           time.Duration
}

func (p *playerState) rolling() bool { return p.rollRemaining > 0 }
func (p *playerState) dead() bool    { return p.health <= 0 }

// projectileState is an ephemeral zone-scoped entity. Age is integrated with
// the fixed tick delta so lifetime is deterministic.
type projectileState struct {
	id    uint32
	owner uint32
	zone  zone.InstanceKey
	x, y  float64
	velX  float64
	velY  float64
	age   float64
}

type lampState struct {
	id      uint32
	zone    zone.InstanceKey
	x, y    float64
	radius  float64
	on      bool
	restore float64
}

// World owns all authoritative state behind one mutex.
type World struct {
	mu sync.Mutex

	cfg       Config
	transport net.Transport
	zones     *zone.Manager
	logger    *zap.SugaredLogger

	players     map[net.Peer]*playerState
	projectiles []*projectileState
	lamps       map[zone.InstanceKey][]*lampState

	nextPlayerID     uint32
	nextProjectileID uint32
	nextLampID       uint32

	currentTick uint64
	rng         *rand.Rand
	now         time.Time

	recorder *replayRecorder

	malformedPackets uint64
}

// NewWorld builds an empty world bound to a transport. Run polls the
// transport itself; tests drive the handlers and Step directly instead.
func NewWorld(cfg Config, transport net.Transport) *World {
	cfg = cfg.normalized()
	w := &World{
		cfg:       cfg,
		transport: transport,
		zones:     zone.NewManager(cfg.MaxPlayersPerZone, cfg.Logger),
		logger:    cfg.Logger,
		players:   make(map[net.Peer]*playerState),
		lamps:     make(map[zone.InstanceKey][]*lampState),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		now:       time.Now(),
	}
	if cfg.ReplayPath != "" {
		recorder, err := newReplayRecorder(cfg.ReplayPath, cfg.Seed)
		if err != nil {
			cfg.Logger.Errorw("replay recording disabled", "path", cfg.ReplayPath, "error", err)
		} else {
			w.recorder = recorder
		}
	}
	return w
}

// Handlers wires the world into a transport poll.
func (w *World) Handlers() net.Handlers {
	return net.Handlers{
		PeerConnected:    w.HandleConnect,
		PeerDisconnected: w.HandleDisconnect,
		Data:             w.HandleData,
		LatencyUpdated:   w.HandleLatency,
	}
}

// HandleConnect allocates the registry record for a fresh peer. The player is
// not in any zone until a join request succeeds.
func (w *World) HandleConnect(peer net.Peer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.players[peer] = &playerState{
		peer:          peer,
		x:             defaultSpawnX,
		y:             defaultSpawnY,
		health:        maxHealth,
		lastHeartbeat: w.now,
	}
	w.logger.Infow("peer connected", "peer", peer)
}

// HandleDisconnect releases the peer's zone slot and drops its record.
func (w *World) HandleDisconnect(peer net.Peer, reason net.DisconnectReason) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.players[peer]
	if !ok {
		return
	}
	if state.joined {
		w.zones.Leave(state.zone)
	}
	delete(w.players, peer)
	w.logger.Infow("peer disconnected", "peer", peer, "player", state.id, "reason", reason)
}

// HandleLatency records transport-measured round-trip time.
func (w *World) HandleLatency(peer net.Peer, millis int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if state, ok := w.players[peer]; ok {
		state.rtt = time.Duration(millis) * time.Millisecond
	}
}

func (w *World) knownZone(id zone.ID) bool {
	for _, candidate := range w.cfg.ZoneIDs {
		if candidate == id {
			return true
		}
	}
	return false
}

// playersInLocked collects the joined players sharing a zone instance.
func (w *World) playersInLocked(key zone.InstanceKey) []*playerState {
	var members []*playerState
	for _, state := range w.players {
		if state.joined && state.zone == key {
			members = append(members, state)
		}
	}
	return members
}

// DiagnosticsPlayer exposes per-connection health for the diagnostics
// endpoint.
type DiagnosticsPlayer struct {
	PlayerID      uint32 `json:"playerId"`
	Zone          int32  `json:"zone"`
	Instance      int32  `json:"instance"`
	Health        int    `json:"health"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
	LastAck       uint32 `json:"lastAck"`
}

// DiagnosticsSnapshot copies connection health data for HTTP exposure.
func (w *World) DiagnosticsSnapshot() []DiagnosticsPlayer {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]DiagnosticsPlayer, 0, len(w.players))
	for _, state := range w.players {
		out = append(out, DiagnosticsPlayer{
			PlayerID:      state.id,
			Zone:          int32(state.zone.Zone),
			Instance:      state.zone.Instance,
			Health:        state.health,
			LastHeartbeat: state.lastHeartbeat.UnixMilli(),
			RTTMillis:     state.rtt.Milliseconds(),
			LastAck:       state.lastAck,
		})
	}
	return out
}

// Tick reports the current simulation tick.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTick
}

// Close flushes the replay recorder, if any.
func (w *World) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recorder != nil {
		w.recorder.close()
		w.recorder = nil
	}
}
