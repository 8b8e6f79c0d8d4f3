// Package zone maps logical zones onto capacity-bounded running instances.
// A zone is a long-lived world region; an instance is one concrete copy of
// it. Admission never fails on capacity: a full zone grows a new instance.
package zone

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ID identifies a logical zone.
type ID int32

// InstanceKey identifies one running copy of a zone.
type InstanceKey struct {
	Zone     ID
	Instance int32
}

// Instance is a read-only view of one running zone copy.
type Instance struct {
	Key         InstanceKey
	PlayerCount int
}

// splitThreshold is the occupancy fraction above which TrySplit creates a
// sibling instance.
const splitThreshold = 0.8

// Manager tracks every live instance and its population. All mutation runs
// under one mutex; reads return defensive copies.
type Manager struct {
	mu         sync.Mutex
	maxPlayers int
	instances  map[ID][]*instanceState
	nextID     map[ID]int32
	logger     *zap.SugaredLogger
}

type instanceState struct {
	key         InstanceKey
	playerCount int
}

// NewManager builds a manager enforcing the given per-instance cap.
func NewManager(maxPlayers int, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		maxPlayers: maxPlayers,
		instances:  make(map[ID][]*instanceState),
		nextID:     make(map[ID]int32),
		logger:     logger,
	}
}

// MaxPlayers reports the per-instance population cap.
func (m *Manager) MaxPlayers() int { return m.maxPlayers }

// Join places a player in an instance of the zone, creating a new instance
// when every existing one is full. The returned key is already counted.
func (m *Manager) Join(zone ID) InstanceKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.instances[zone] {
		if inst.playerCount < m.maxPlayers {
			inst.playerCount++
			return inst.key
		}
	}
	inst := m.newInstanceLocked(zone)
	inst.playerCount = 1
	return inst.key
}

// Leave releases a player's slot. Unknown keys are ignored; disconnect races
// make them possible.
func (m *Manager) Leave(key InstanceKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst := m.findLocked(key); inst != nil && inst.playerCount > 0 {
		inst.playerCount--
	}
}

// TrySplit creates a sibling instance for one running above the split
// threshold. Existing players keep their instance: live transfer would need a
// handoff protocol for in-flight ability and projectile state, which does not
// exist yet, so the sibling only absorbs future joins.
func (m *Manager) TrySplit(key InstanceKey) (InstanceKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst := m.findLocked(key)
	if inst == nil {
		return InstanceKey{}, false
	}
	if float64(inst.playerCount) < splitThreshold*float64(m.maxPlayers) {
		return InstanceKey{}, false
	}
	sibling := m.newInstanceLocked(key.Zone)
	m.logger.Infow("split zone instance; existing players not transferred",
		"zone", key.Zone, "from", key.Instance, "to", sibling.key.Instance)
	return sibling.key, true
}

// TryMerge collapses the two least-populated instances of a zone when their
// combined population fits the cap. Only an empty instance can actually be
// retired today, for the same missing-handoff reason as TrySplit.
func (m *Manager) TryMerge(zone ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.instances[zone]
	if len(set) < 2 {
		return false
	}
	sorted := make([]*instanceState, len(set))
	copy(sorted, set)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].playerCount < sorted[j].playerCount
	})

	low, next := sorted[0], sorted[1]
	if low.playerCount+next.playerCount > m.maxPlayers {
		return false
	}
	if low.playerCount > 0 {
		m.logger.Infow("merge candidate still populated; player transfer not implemented",
			"zone", zone, "instance", low.key.Instance, "players", low.playerCount)
		return false
	}

	kept := set[:0]
	for _, inst := range set {
		if inst != low {
			kept = append(kept, inst)
		}
	}
	m.instances[zone] = kept
	m.logger.Infow("retired empty zone instance",
		"zone", zone, "instance", low.key.Instance)
	return true
}

// Instances returns a snapshot of every instance of a zone.
func (m *Manager) Instances(zone ID) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked(m.instances[zone])
}

// AllInstances returns a snapshot across every zone.
func (m *Manager) AllInstances() []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Instance
	for _, set := range m.instances {
		out = append(out, m.copyLocked(set)...)
	}
	return out
}

func (m *Manager) copyLocked(set []*instanceState) []Instance {
	out := make([]Instance, 0, len(set))
	for _, inst := range set {
		out = append(out, Instance{Key: inst.key, PlayerCount: inst.playerCount})
	}
	return out
}

func (m *Manager) findLocked(key InstanceKey) *instanceState {
	for _, inst := range m.instances[key.Zone] {
		if inst.key == key {
			return inst
		}
	}
	return nil
}

// newInstanceLocked appends an instance with the next monotonically
// increasing id for the zone. Retired ids are never reused so stale
// references cannot alias a new instance.
func (m *Manager) newInstanceLocked(zone ID) *instanceState {
	m.nextID[zone]++
	inst := &instanceState{key: InstanceKey{Zone: zone, Instance: m.nextID[zone]}}
	m.instances[zone] = append(m.instances[zone], inst)
	return inst
}
