package sim

import (
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// replayEvent is one tick-stamped simulation event in a recording. Subject
// and Value are event-specific: a hit records the target id and remaining
// health, a lamp toggle records the lamp id and its new state, and so on.
type replayEvent struct {
	Tick    uint64 `msgpack:"t"`
	Kind    string `msgpack:"k"`
	Subject uint32 `msgpack:"s"`
	Value   uint32 `msgpack:"v"`
}

type replayHeader struct {
	Seed      int64 `msgpack:"seed"`
	StartedAt int64 `msgpack:"startedAt"`
}

const (
	eventJoin    = "join"
	eventShoot   = "shoot"
	eventRoll    = "roll"
	eventHit     = "hit"
	eventDeath   = "death"
	eventRespawn = "respawn"
	eventLamp    = "lamp"
)

// replayRecorder appends a msgpack stream of simulation events for offline
// debugging. It is written only from under the world mutex.
type replayRecorder struct {
	file *os.File
	enc  *msgpack.Encoder
}

func newReplayRecorder(path string, seed int64) (*replayRecorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay file: %w", err)
	}
	enc := msgpack.NewEncoder(file)
	if err := enc.Encode(replayHeader{Seed: seed, StartedAt: time.Now().UnixMilli()}); err != nil {
		file.Close()
		return nil, fmt.Errorf("write replay header: %w", err)
	}
	return &replayRecorder{file: file, enc: enc}, nil
}

func (r *replayRecorder) record(tick uint64, kind string, subject, value uint32) {
	if err := r.enc.Encode(replayEvent{Tick: tick, Kind: kind, Subject: subject, Value: value}); err != nil {
		// A failing recording must never affect the simulation; drop it.
		r.file.Close()
		r.enc = nil
	}
}

func (r *replayRecorder) close() {
	if r.file != nil {
		r.file.Close()
	}
}

// record forwards to the recorder when one is attached. Caller must hold the
// world mutex.
func (w *World) record(kind string, subject, value uint32) {
	if w.recorder == nil || w.recorder.enc == nil {
		return
	}
	w.recorder.record(w.currentTick, kind, subject, value)
}
