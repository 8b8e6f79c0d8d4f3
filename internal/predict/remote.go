package predict

import "time"

const (
	// snapshotInterval is the expected gap between authoritative snapshots;
	// interpolation progress advances toward 1 over one interval.
	snapshotInterval = 0.05 // seconds, 60 Hz ticks snapshotted every 3

	// staleAfter evicts remote entities that stopped receiving updates.
	staleAfter = 5 * time.Second
)

// RemoteEntity interpolates one non-local player between its last two
// authoritative positions. Remote entities never predict.
type RemoteEntity struct {
	PlayerID uint32
	Health   int32

	prevX, prevY float64
	nextX, nextY float64
	progress     float64

	lastUpdate time.Time
}

// Position reports the interpolated render position.
func (e *RemoteEntity) Position() (float64, float64) {
	t := e.progress
	if t > 1 {
		t = 1
	}
	return e.prevX + (e.nextX-e.prevX)*t, e.prevY + (e.nextY-e.prevY)*t
}

// RemoteSet is the read-only mirror of remote players reconstructed from
// snapshots.
type RemoteSet struct {
	entities map[uint32]*RemoteEntity
}

// NewRemoteSet builds an empty mirror.
func NewRemoteSet() *RemoteSet {
	return &RemoteSet{entities: make(map[uint32]*RemoteEntity)}
}

// Observe folds one snapshot entry in: the previous target becomes the
// interpolation start and progress rewinds to zero.
func (s *RemoteSet) Observe(playerID uint32, x, y float64, health int32, now time.Time) {
	entity, ok := s.entities[playerID]
	if !ok {
		entity = &RemoteEntity{
			PlayerID: playerID,
			prevX:    x, prevY: y,
			nextX: x, nextY: y,
			progress: 1,
		}
		s.entities[playerID] = entity
	} else {
		entity.prevX, entity.prevY = entity.Position()
		entity.nextX, entity.nextY = x, y
		entity.progress = 0
	}
	entity.Health = health
	entity.lastUpdate = now
}

// Advance moves interpolation forward by a frame delta and evicts entities
// beyond the staleness window.
func (s *RemoteSet) Advance(frameDelta float64, now time.Time) {
	for id, entity := range s.entities {
		if now.Sub(entity.lastUpdate) > staleAfter {
			delete(s.entities, id)
			continue
		}
		if entity.progress < 1 {
			entity.progress += frameDelta / snapshotInterval
			if entity.progress > 1 {
				entity.progress = 1
			}
		}
	}
}

// Get returns the entity for a player id, if tracked.
func (s *RemoteSet) Get(playerID uint32) (*RemoteEntity, bool) {
	entity, ok := s.entities[playerID]
	return entity, ok
}

// All returns the tracked entities; the map must not be mutated by callers.
func (s *RemoteSet) All() map[uint32]*RemoteEntity { return s.entities }

// Len reports the tracked entity count.
func (s *RemoteSet) Len() int { return len(s.entities) }
