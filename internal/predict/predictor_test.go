package predict

import (
	"math"
	"testing"
	"time"
)

func TestPredictAdvancesAtNominalDelta(t *testing.T) {
	p := NewPredictor(400, 300)

	record := p.Predict(1, 0)
	if record.Sequence != 1 {
		t.Fatalf("expected first sequence 1, got %d", record.Sequence)
	}

	x, y := p.Position()
	want := 400.0 + moveSpeed*fixedInputDelta
	if math.Abs(x-want) > 1e-9 || y != 300 {
		t.Fatalf("expected (%f, 300), got (%f, %f)", want, x, y)
	}
}

func TestPredictNormalizesDiagonals(t *testing.T) {
	p := NewPredictor(0, 0)
	p.Predict(1, 1)

	x, y := p.Position()
	step := moveSpeed * fixedInputDelta / math.Sqrt2
	if math.Abs(x-step) > 1e-9 || math.Abs(y-step) > 1e-9 {
		t.Fatalf("expected normalized diagonal step (%f, %f), got (%f, %f)", step, step, x, y)
	}
}

func TestSequencesAreMonotonic(t *testing.T) {
	p := NewPredictor(0, 0)
	last := uint32(0)
	for i := 0; i < 100; i++ {
		record := p.Predict(1, 0)
		if record.Sequence <= last {
			t.Fatalf("sequence regressed: %d after %d", record.Sequence, last)
		}
		last = record.Sequence
	}
}

func TestReconcileConfirmsAckedInputs(t *testing.T) {
	p := NewPredictor(0, 0)
	for i := 0; i < 5; i++ {
		p.Predict(1, 0)
	}
	if p.Pending() != 5 {
		t.Fatalf("expected 5 pending inputs, got %d", p.Pending())
	}

	x, _ := p.Position()
	p.Reconcile(3, x-2*moveSpeed*fixedInputDelta, 0)
	if p.Pending() != 2 {
		t.Fatalf("expected 2 pending after ack 3, got %d", p.Pending())
	}

	// Acking everything, including a sequence beyond what was sent, empties
	// the buffer and never re-replays confirmed inputs.
	p.Reconcile(99, 0, 0)
	if p.Pending() != 0 {
		t.Fatalf("expected empty buffer after ack 99, got %d", p.Pending())
	}
}

func TestReconcileDeadZoneLeavesRenderPosition(t *testing.T) {
	p := NewPredictor(100, 100)
	p.Reconcile(0, 100.5, 100)

	x, y := p.Position()
	if x != 100 || y != 100 {
		t.Fatalf("sub-unit error must not correct, got (%f, %f)", x, y)
	}
}

func TestReconcileBlendsMediumError(t *testing.T) {
	p := NewPredictor(100, 100)
	p.Reconcile(0, 110, 100)

	x, y := p.Position()
	if math.Abs(x-103) > 1e-9 || y != 100 {
		t.Fatalf("expected 30%% blend to (103, 100), got (%f, %f)", x, y)
	}
}

func TestReconcileSnapsLargeError(t *testing.T) {
	p := NewPredictor(100, 100)
	p.Reconcile(0, 180, 100)

	x, y := p.Position()
	if x != 180 || y != 100 {
		t.Fatalf("expected snap to (180, 100), got (%f, %f)", x, y)
	}
}

func TestReconcileReplaysUnackedInputs(t *testing.T) {
	p := NewPredictor(400, 300)
	p.Predict(1, 0) // seq 1
	p.Predict(1, 0) // seq 2

	// Server confirms seq 1 at the exact predicted position; replaying seq 2
	// reproduces the render position, so no correction applies.
	step := moveSpeed * fixedInputDelta
	p.Reconcile(1, 400+step, 300)

	x, y := p.Position()
	if math.Abs(x-(400+2*step)) > 1e-9 || y != 300 {
		t.Fatalf("expected replay to preserve (%f, 300), got (%f, %f)", 400+2*step, x, y)
	}
}

// The full round trip of the movement contract: one input, server echo with
// the same integration, zero correction.
func TestEndToEndZeroCorrection(t *testing.T) {
	p := NewPredictor(400, 300)
	record := p.Predict(1, 0)

	serverX := 400 + record.MoveX*moveSpeed*fixedInputDelta
	serverY := 300 + record.MoveY*moveSpeed*fixedInputDelta
	p.Reconcile(record.Sequence, serverX, serverY)

	x, y := p.Position()
	if math.Abs(x-serverX) > 1e-9 || math.Abs(y-serverY) > 1e-9 {
		t.Fatalf("expected (%f, %f), got (%f, %f)", serverX, serverY, x, y)
	}
	if p.Pending() != 0 {
		t.Fatalf("expected confirmed input to leave the buffer")
	}
}

func TestResetKeepsSequenceCounter(t *testing.T) {
	p := NewPredictor(400, 300)
	for i := 0; i < 3; i++ {
		p.Predict(1, 0)
	}

	p.Reset(50, 60)
	if x, y := p.Position(); x != 50 || y != 60 {
		t.Fatalf("expected reset position (50, 60), got (%f, %f)", x, y)
	}
	if p.Pending() != 0 {
		t.Fatalf("expected reset to discard pending inputs, got %d", p.Pending())
	}

	record := p.Predict(1, 0)
	if record.Sequence != 4 {
		t.Fatalf("sequences must continue across a reset, got %d after 3", record.Sequence)
	}
}

func TestRollingMultiplierAppliesToPredictionAndReplay(t *testing.T) {
	p := NewPredictor(0, 0)
	p.SetRolling(true)
	p.Predict(1, 0)

	x, _ := p.Position()
	want := moveSpeed * rollSpeedMultiplier * fixedInputDelta
	if math.Abs(x-want) > 1e-9 {
		t.Fatalf("expected rolled step %f, got %f", want, x)
	}
}

func TestRemoteEntityInterpolates(t *testing.T) {
	s := NewRemoteSet()
	now := time.Now()

	s.Observe(9, 100, 100, 100, now)
	s.Observe(9, 110, 100, 100, now)

	entity, ok := s.Get(9)
	if !ok {
		t.Fatalf("expected entity 9 to be tracked")
	}
	if x, _ := entity.Position(); x != 100 {
		t.Fatalf("expected interpolation to start at previous position, got %f", x)
	}

	s.Advance(snapshotInterval/2, now)
	if x, _ := entity.Position(); math.Abs(x-105) > 1e-9 {
		t.Fatalf("expected midpoint 105, got %f", x)
	}

	s.Advance(snapshotInterval, now)
	if x, _ := entity.Position(); x != 110 {
		t.Fatalf("expected interpolation to settle at 110, got %f", x)
	}
}

func TestRemoteEntityFirstObservationDoesNotSlide(t *testing.T) {
	s := NewRemoteSet()
	now := time.Now()

	s.Observe(1, 250, 250, 80, now)
	entity, _ := s.Get(1)
	if x, y := entity.Position(); x != 250 || y != 250 {
		t.Fatalf("expected first observation to render in place, got (%f, %f)", x, y)
	}
	if entity.Health != 80 {
		t.Fatalf("expected health 80, got %d", entity.Health)
	}
}

func TestRemoteSetEvictsStaleEntities(t *testing.T) {
	s := NewRemoteSet()
	now := time.Now()

	s.Observe(1, 0, 0, 100, now)
	s.Observe(2, 0, 0, 100, now.Add(4*time.Second))

	s.Advance(0.016, now.Add(5200*time.Millisecond))
	if _, ok := s.Get(1); ok {
		t.Fatalf("expected entity 1 to be evicted after the staleness window")
	}
	if _, ok := s.Get(2); !ok {
		t.Fatalf("entity 2 was refreshed and must survive")
	}
}
