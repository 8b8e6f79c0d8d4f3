package wire

import (
	"encoding/binary"
	"math"
	"testing"
)

func roundTrip(t *testing.T, pkt Packet) Packet {
	t.Helper()
	decoded, ok := Decode(pkt.Encode())
	if !ok {
		t.Fatalf("expected %T to decode, got discard", pkt)
	}
	return decoded
}

func TestRoundTripZoneJoin(t *testing.T) {
	req := roundTrip(t, ZoneJoinRequest{ZoneID: -7}).(ZoneJoinRequest)
	if req.ZoneID != -7 {
		t.Fatalf("expected zone -7, got %d", req.ZoneID)
	}

	resp := roundTrip(t, ZoneJoinResponse{
		Success:    true,
		InstanceID: 3,
		PlayerID:   math.MaxUint32,
		SpawnX:     412.5,
		SpawnY:     -88.25,
	}).(ZoneJoinResponse)
	if !resp.Success || resp.InstanceID != 3 || resp.PlayerID != math.MaxUint32 {
		t.Fatalf("unexpected join response %+v", resp)
	}
	if resp.SpawnX != 412.5 || resp.SpawnY != -88.25 {
		t.Fatalf("unexpected spawn position %+v", resp)
	}
}

func TestRoundTripPlayerInput(t *testing.T) {
	in := roundTrip(t, PlayerInput{
		MoveX:    -1,
		MoveY:    0.7071,
		Attack:   true,
		Interact: false,
		Sequence: 90001,
	}).(PlayerInput)
	if in.MoveX != -1 || in.MoveY != 0.7071 {
		t.Fatalf("unexpected move vector %+v", in)
	}
	if !in.Attack || in.Interact {
		t.Fatalf("unexpected button state %+v", in)
	}
	if in.Sequence != 90001 {
		t.Fatalf("expected sequence 90001, got %d", in.Sequence)
	}
}

func TestRoundTripCombatPackets(t *testing.T) {
	shoot := roundTrip(t, Shoot{TargetX: 10, TargetY: 20}).(Shoot)
	if shoot.TargetX != 10 || shoot.TargetY != 20 {
		t.Fatalf("unexpected shoot %+v", shoot)
	}

	spawn := roundTrip(t, ProjectileSpawn{
		ProjectileID: 5,
		OwnerID:      2,
		X:            100, Y: 200,
		VelX: 353.55, VelY: -353.55,
	}).(ProjectileSpawn)
	if spawn.ProjectileID != 5 || spawn.OwnerID != 2 || spawn.VelX != 353.55 {
		t.Fatalf("unexpected projectile spawn %+v", spawn)
	}

	hit := roundTrip(t, PlayerHit{PlayerID: 9, Health: -20, ShooterID: 4}).(PlayerHit)
	if hit.Health != -20 || hit.ShooterID != 4 {
		t.Fatalf("unexpected hit %+v", hit)
	}

	death := roundTrip(t, PlayerDeath{PlayerID: 9, KillerID: 4}).(PlayerDeath)
	if death.PlayerID != 9 || death.KillerID != 4 {
		t.Fatalf("unexpected death %+v", death)
	}
}

func TestRoundTripAbilityAndLampPackets(t *testing.T) {
	if _, ok := Decode(Roll{}.Encode()); !ok {
		t.Fatalf("expected bodyless roll to decode")
	}

	state := roundTrip(t, RollState{PlayerID: 12, IsRolling: true}).(RollState)
	if state.PlayerID != 12 || !state.IsRolling {
		t.Fatalf("unexpected roll state %+v", state)
	}

	lamp := roundTrip(t, LampSpawn{LampID: 3, X: 50, Y: 60, Radius: 18, IsOn: true}).(LampSpawn)
	if lamp.LampID != 3 || lamp.Radius != 18 || !lamp.IsOn {
		t.Fatalf("unexpected lamp spawn %+v", lamp)
	}

	toggled := roundTrip(t, LampState{LampID: 3, IsOn: false}).(LampState)
	if toggled.LampID != 3 || toggled.IsOn {
		t.Fatalf("unexpected lamp state %+v", toggled)
	}

	hb := roundTrip(t, Heartbeat{ClientTime: 1700000000123}).(Heartbeat)
	if hb.ClientTime != 1700000000123 {
		t.Fatalf("unexpected heartbeat %+v", hb)
	}
}

func TestRoundTripWorldSnapshot(t *testing.T) {
	original := WorldSnapshot{
		AckSequence: 42,
		Players: []SnapshotPlayer{
			{PlayerID: 1, X: 403.33, Y: 300, Health: 100},
			{PlayerID: 2, X: 0, Y: 0, Health: 0},
			{PlayerID: 3, X: -15.5, Y: 599.9, Health: 80},
		},
	}
	snap := roundTrip(t, original).(WorldSnapshot)
	if snap.AckSequence != 42 {
		t.Fatalf("expected ack 42, got %d", snap.AckSequence)
	}
	if len(snap.Players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(snap.Players))
	}
	for i, entry := range snap.Players {
		if entry != original.Players[i] {
			t.Fatalf("player %d mismatch: %+v vs %+v", i, entry, original.Players[i])
		}
	}
}

func TestDecodeEmptySnapshot(t *testing.T) {
	snap := roundTrip(t, WorldSnapshot{AckSequence: 1}).(WorldSnapshot)
	if len(snap.Players) != 0 {
		t.Fatalf("expected empty player list, got %d entries", len(snap.Players))
	}
}

// Every strict prefix of a valid packet must decode as a discard, never panic.
func TestTruncationDiscardsEveryPrefix(t *testing.T) {
	payloads := [][]byte{
		ZoneJoinRequest{ZoneID: 1}.Encode(),
		ZoneJoinResponse{Success: true, InstanceID: 1, PlayerID: 2, SpawnX: 3, SpawnY: 4}.Encode(),
		PlayerInput{MoveX: 1, MoveY: 1, Sequence: 5}.Encode(),
		Shoot{TargetX: 1, TargetY: 2}.Encode(),
		ProjectileSpawn{ProjectileID: 1, OwnerID: 2, X: 3, Y: 4, VelX: 5, VelY: 6}.Encode(),
		PlayerHit{PlayerID: 1, Health: 2, ShooterID: 3}.Encode(),
		PlayerDeath{PlayerID: 1, KillerID: 2}.Encode(),
		RollState{PlayerID: 1, IsRolling: true}.Encode(),
		LampSpawn{LampID: 1, X: 2, Y: 3, Radius: 4, IsOn: true}.Encode(),
		LampState{LampID: 1, IsOn: true}.Encode(),
		WorldSnapshot{AckSequence: 1, Players: []SnapshotPlayer{{PlayerID: 1}}}.Encode(),
		Heartbeat{ClientTime: 99}.Encode(),
	}
	for _, payload := range payloads {
		for cut := 0; cut < len(payload); cut++ {
			if _, ok := Decode(payload[:cut]); ok {
				t.Fatalf("tag %d: expected prefix of length %d to be discarded", payload[0], cut)
			}
		}
		if _, ok := Decode(payload); !ok {
			t.Fatalf("tag %d: full payload should decode", payload[0])
		}
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, ok := Decode([]byte{0xFF, 1, 2, 3}); ok {
		t.Fatalf("expected unknown tag to be discarded")
	}
	if _, ok := Decode(nil); ok {
		t.Fatalf("expected empty payload to be discarded")
	}
}

// A snapshot claiming more entries than the buffer holds must not over-read.
func TestDecodeSnapshotCountGuards(t *testing.T) {
	valid := WorldSnapshot{AckSequence: 7, Players: []SnapshotPlayer{{PlayerID: 1}}}.Encode()

	lying := make([]byte, len(valid))
	copy(lying, valid)
	binary.LittleEndian.PutUint32(lying[5:9], 4000)
	if _, ok := Decode(lying); ok {
		t.Fatalf("expected inflated count to be discarded")
	}

	binary.LittleEndian.PutUint32(lying[5:9], uint32(0x80000000))
	if _, ok := Decode(lying); ok {
		t.Fatalf("expected negative count to be discarded")
	}

	huge := make([]byte, len(valid))
	copy(huge, valid)
	binary.LittleEndian.PutUint32(huge[5:9], MaxSnapshotPlayers+1)
	if _, ok := Decode(huge); ok {
		t.Fatalf("expected count above cap to be discarded")
	}
}
