// Package wire implements the fixed-layout binary packet encoding shared by
// client and server. The first byte of every payload is a type tag; every tag
// has a statically known field layout. Multi-byte fields are little-endian,
// floats are IEEE-754 binary32.
//
// Decoding is fail-closed: a payload shorter than its tag's minimum length is
// discarded without an error. There is no schema versioning; mismatched
// builds simply desync.
package wire

import (
	"encoding/binary"
	"math"
)

// Tag identifies a packet layout.
type Tag byte

const (
	TagInvalid Tag = iota
	TagZoneJoinRequest
	TagZoneJoinResponse
	TagPlayerInput
	TagShoot
	TagProjectileSpawn
	TagPlayerHit
	TagPlayerDeath
	TagRoll
	TagRollState
	TagLampSpawn
	TagLampState
	TagWorldSnapshot
	TagHeartbeat
)

// MaxSnapshotPlayers bounds the repeated trailing block of a world snapshot so
// a hostile count field can never drive an allocation or over-read.
const MaxSnapshotPlayers = 256

// Packet is implemented by every decodable message.
type Packet interface {
	Tag() Tag
	Encode() []byte
}

// ZoneJoinRequest asks the server to place the sender in a zone.
type ZoneJoinRequest struct {
	ZoneID int32
}

// ZoneJoinResponse reports the result of a join. On failure only Success is
// meaningful.
type ZoneJoinResponse struct {
	Success    bool
	InstanceID int32
	PlayerID   uint32
	SpawnX     float32
	SpawnY     float32
}

// PlayerInput carries one frame of client intent. Sequence is monotonic per
// connection session, starting at 1.
type PlayerInput struct {
	MoveX    float32
	MoveY    float32
	Attack   bool
	Interact bool
	Sequence uint32
}

// Shoot aims a projectile at a world-space target point.
type Shoot struct {
	TargetX float32
	TargetY float32
}

// ProjectileSpawn announces a projectile to a zone.
type ProjectileSpawn struct {
	ProjectileID uint32
	OwnerID      uint32
	X, Y         float32
	VelX, VelY   float32
}

// PlayerHit reports damage applied to a player.
type PlayerHit struct {
	PlayerID  uint32
	Health    int32
	ShooterID uint32
}

// PlayerDeath reports a player reaching zero health.
type PlayerDeath struct {
	PlayerID uint32
	KillerID uint32
}

// Roll requests the burst-movement ability. It has no body.
type Roll struct{}

// RollState broadcasts a burst-ability transition.
type RollState struct {
	PlayerID  uint32
	IsRolling bool
}

// LampSpawn seeds one interactable lamp on a joining client.
type LampSpawn struct {
	LampID uint32
	X, Y   float32
	Radius float32
	IsOn   bool
}

// LampState broadcasts a lamp toggle.
type LampState struct {
	LampID uint32
	IsOn   bool
}

// SnapshotPlayer is one entry of a world snapshot's repeated block.
type SnapshotPlayer struct {
	PlayerID uint32
	X, Y     float32
	Health   int32
}

// WorldSnapshot is the personalized authoritative broadcast. AckSequence is
// the recipient's own last-acknowledged input sequence, not a global tick.
type WorldSnapshot struct {
	AckSequence uint32
	Players     []SnapshotPlayer
}

// Heartbeat carries the client's send time in unix milliseconds so the server
// can echo it back for RTT measurement.
type Heartbeat struct {
	ClientTime int64
}

func (ZoneJoinRequest) Tag() Tag  { return TagZoneJoinRequest }
func (ZoneJoinResponse) Tag() Tag { return TagZoneJoinResponse }
func (PlayerInput) Tag() Tag      { return TagPlayerInput }
func (Shoot) Tag() Tag            { return TagShoot }
func (ProjectileSpawn) Tag() Tag  { return TagProjectileSpawn }
func (PlayerHit) Tag() Tag        { return TagPlayerHit }
func (PlayerDeath) Tag() Tag      { return TagPlayerDeath }
func (Roll) Tag() Tag             { return TagRoll }
func (RollState) Tag() Tag        { return TagRollState }
func (LampSpawn) Tag() Tag        { return TagLampSpawn }
func (LampState) Tag() Tag        { return TagLampState }
func (WorldSnapshot) Tag() Tag    { return TagWorldSnapshot }
func (Heartbeat) Tag() Tag        { return TagHeartbeat }

type writer struct {
	buf []byte
}

func newWriter(tag Tag, size int) *writer {
	w := &writer{buf: make([]byte, 0, size+1)}
	w.buf = append(w.buf, byte(tag))
	return w
}

func (w *writer) u8(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v)) }
func (w *writer) i64(v int64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }
func (w *writer) f32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *writer) flag(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// reader consumes a payload after the tag byte. Every accessor checks the
// remaining length; once short it stays failed and returns zero values.
type reader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) need(n int) bool {
	if r.failed || r.remaining() < n {
		r.failed = true
		return false
	}
	return true
}

func (r *reader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) i64() int64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return int64(v)
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) flag() bool { return r.u8() != 0 }

// Encode renders the packet as tag byte + little-endian fields.
func (p ZoneJoinRequest) Encode() []byte {
	w := newWriter(TagZoneJoinRequest, 4)
	w.i32(p.ZoneID)
	return w.buf
}

func (p ZoneJoinResponse) Encode() []byte {
	w := newWriter(TagZoneJoinResponse, 17)
	w.flag(p.Success)
	w.i32(p.InstanceID)
	w.u32(p.PlayerID)
	w.f32(p.SpawnX)
	w.f32(p.SpawnY)
	return w.buf
}

func (p PlayerInput) Encode() []byte {
	w := newWriter(TagPlayerInput, 14)
	w.f32(p.MoveX)
	w.f32(p.MoveY)
	w.flag(p.Attack)
	w.flag(p.Interact)
	w.u32(p.Sequence)
	return w.buf
}

func (p Shoot) Encode() []byte {
	w := newWriter(TagShoot, 8)
	w.f32(p.TargetX)
	w.f32(p.TargetY)
	return w.buf
}

func (p ProjectileSpawn) Encode() []byte {
	w := newWriter(TagProjectileSpawn, 24)
	w.u32(p.ProjectileID)
	w.u32(p.OwnerID)
	w.f32(p.X)
	w.f32(p.Y)
	w.f32(p.VelX)
	w.f32(p.VelY)
	return w.buf
}

func (p PlayerHit) Encode() []byte {
	w := newWriter(TagPlayerHit, 12)
	w.u32(p.PlayerID)
	w.i32(p.Health)
	w.u32(p.ShooterID)
	return w.buf
}

func (p PlayerDeath) Encode() []byte {
	w := newWriter(TagPlayerDeath, 8)
	w.u32(p.PlayerID)
	w.u32(p.KillerID)
	return w.buf
}

func (p Roll) Encode() []byte {
	return []byte{byte(TagRoll)}
}

func (p RollState) Encode() []byte {
	w := newWriter(TagRollState, 5)
	w.u32(p.PlayerID)
	w.flag(p.IsRolling)
	return w.buf
}

func (p LampSpawn) Encode() []byte {
	w := newWriter(TagLampSpawn, 17)
	w.u32(p.LampID)
	w.f32(p.X)
	w.f32(p.Y)
	w.f32(p.Radius)
	w.flag(p.IsOn)
	return w.buf
}

func (p LampState) Encode() []byte {
	w := newWriter(TagLampState, 5)
	w.u32(p.LampID)
	w.flag(p.IsOn)
	return w.buf
}

func (p WorldSnapshot) Encode() []byte {
	w := newWriter(TagWorldSnapshot, 8+16*len(p.Players))
	w.u32(p.AckSequence)
	w.i32(int32(len(p.Players)))
	for _, entry := range p.Players {
		w.u32(entry.PlayerID)
		w.f32(entry.X)
		w.f32(entry.Y)
		w.i32(entry.Health)
	}
	return w.buf
}

func (p Heartbeat) Encode() []byte {
	w := newWriter(TagHeartbeat, 8)
	w.i64(p.ClientTime)
	return w.buf
}

// Decode parses a payload into its typed packet. The second return is false
// for an empty payload, an unknown tag, or a body shorter than the tag's
// layout; callers discard such packets silently.
func Decode(payload []byte) (Packet, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	r := &reader{buf: payload, off: 1}

	var pkt Packet
	switch Tag(payload[0]) {
	case TagZoneJoinRequest:
		pkt = ZoneJoinRequest{ZoneID: r.i32()}
	case TagZoneJoinResponse:
		pkt = ZoneJoinResponse{
			Success:    r.flag(),
			InstanceID: r.i32(),
			PlayerID:   r.u32(),
			SpawnX:     r.f32(),
			SpawnY:     r.f32(),
		}
	case TagPlayerInput:
		pkt = PlayerInput{
			MoveX:    r.f32(),
			MoveY:    r.f32(),
			Attack:   r.flag(),
			Interact: r.flag(),
			Sequence: r.u32(),
		}
	case TagShoot:
		pkt = Shoot{TargetX: r.f32(), TargetY: r.f32()}
	case TagProjectileSpawn:
		pkt = ProjectileSpawn{
			ProjectileID: r.u32(),
			OwnerID:      r.u32(),
			X:            r.f32(),
			Y:            r.f32(),
			VelX:         r.f32(),
			VelY:         r.f32(),
		}
	case TagPlayerHit:
		pkt = PlayerHit{PlayerID: r.u32(), Health: r.i32(), ShooterID: r.u32()}
	case TagPlayerDeath:
		pkt = PlayerDeath{PlayerID: r.u32(), KillerID: r.u32()}
	case TagRoll:
		pkt = Roll{}
	case TagRollState:
		pkt = RollState{PlayerID: r.u32(), IsRolling: r.flag()}
	case TagLampSpawn:
		pkt = LampSpawn{
			LampID: r.u32(),
			X:      r.f32(),
			Y:      r.f32(),
			Radius: r.f32(),
			IsOn:   r.flag(),
		}
	case TagLampState:
		pkt = LampState{LampID: r.u32(), IsOn: r.flag()}
	case TagWorldSnapshot:
		var ok bool
		pkt, ok = decodeWorldSnapshot(r)
		if !ok {
			return nil, false
		}
	case TagHeartbeat:
		pkt = Heartbeat{ClientTime: r.i64()}
	default:
		return nil, false
	}

	if r.failed {
		return nil, false
	}
	return pkt, true
}

// decodeWorldSnapshot bounds the repeated trailing block by both the decoded
// count and the bytes actually present.
func decodeWorldSnapshot(r *reader) (WorldSnapshot, bool) {
	snap := WorldSnapshot{AckSequence: r.u32()}
	count := r.i32()
	if r.failed {
		return WorldSnapshot{}, false
	}
	if count < 0 || count > MaxSnapshotPlayers {
		return WorldSnapshot{}, false
	}
	if r.remaining() < int(count)*16 {
		return WorldSnapshot{}, false
	}
	snap.Players = make([]SnapshotPlayer, 0, count)
	for i := int32(0); i < count; i++ {
		snap.Players = append(snap.Players, SnapshotPlayer{
			PlayerID: r.u32(),
			X:        r.f32(),
			Y:        r.f32(),
			Health:   r.i32(),
		})
	}
	return snap, !r.failed
}
