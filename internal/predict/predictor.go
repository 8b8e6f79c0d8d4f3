// Package predict implements the client side of the synchronization
// contract: optimistic local prediction with an unacknowledged-input buffer,
// reconciliation against authoritative snapshots, and interpolation of
// remote entities between snapshots.
package predict

import "math"

const (
	moveSpeed           = 200.0 // must match the server's integration
	fixedInputDelta     = 1.0 / 60.0
	rollSpeedMultiplier = 1.8

	// Correction tiers: below the dead zone the render position already
	// coincides; inside the band we blend to hide small drift; beyond the
	// snap threshold the desync is too large to smooth over.
	correctionDeadZone = 1.0
	snapThreshold      = 50.0
	blendFactor        = 0.3
)

// InputRecord is one frame of intent kept until the server acknowledges an
// equal-or-higher sequence.
type InputRecord struct {
	Sequence uint32
	MoveX    float64
	MoveY    float64
}

// Predictor owns the local player's predicted position and the pending
// input buffer. It is driven once per rendered frame.
type Predictor struct {
	x, y float64

	nextSequence uint32
	pending      []InputRecord

	rolling bool

	lastError float64
}

// NewPredictor starts prediction from an authoritative spawn position.
func NewPredictor(spawnX, spawnY float64) *Predictor {
	return &Predictor{x: spawnX, y: spawnY}
}

// Reset adopts a new authoritative position and discards pending inputs,
// keeping the sequence counter. Sequences are monotonic for the whole
// connection session; restarting them would collide with the server's
// last-acknowledged value and silently confirm inputs it never applied.
func (p *Predictor) Reset(x, y float64) {
	p.x, p.y = x, y
	p.pending = p.pending[:0]
	p.rolling = false
	p.lastError = 0
}

// Position reports the current rendered position.
func (p *Predictor) Position() (float64, float64) { return p.x, p.y }

// Pending reports the number of unacknowledged inputs.
func (p *Predictor) Pending() int { return len(p.pending) }

// SetRolling mirrors the locally predicted burst-ability state so prediction
// and replay use the same speed multiplier the server will apply.
func (p *Predictor) SetRolling(active bool) { p.rolling = active }

// LastError reports the prediction error magnitude measured by the most
// recent Reconcile, before any correction was applied.
func (p *Predictor) LastError() float64 { return p.lastError }

// Predict consumes one frame of directional input: it normalizes the vector,
// assigns the next sequence, buffers the record, and applies the movement
// optimistically. The returned record carries the sequence to transmit.
func (p *Predictor) Predict(moveX, moveY float64) InputRecord {
	if length := math.Hypot(moveX, moveY); length > 1 {
		moveX /= length
		moveY /= length
	}

	p.nextSequence++
	record := InputRecord{Sequence: p.nextSequence, MoveX: moveX, MoveY: moveY}
	p.pending = append(p.pending, record)

	p.x, p.y = integrate(p.x, p.y, record, p.rolling)
	return record
}

// Reconcile folds an authoritative update into the predicted state. Every
// buffered input at or below ack is confirmed and dropped; the remainder is
// replayed on top of the server position, and the rendered position is
// corrected by error magnitude: snap, blend, or leave alone.
func (p *Predictor) Reconcile(ack uint32, serverX, serverY float64) {
	confirmed := 0
	for confirmed < len(p.pending) && p.pending[confirmed].Sequence <= ack {
		confirmed++
	}
	p.pending = p.pending[confirmed:]

	replayedX, replayedY := serverX, serverY
	for _, record := range p.pending {
		replayedX, replayedY = integrate(replayedX, replayedY, record, p.rolling)
	}

	errorMagnitude := math.Hypot(replayedX-p.x, replayedY-p.y)
	p.lastError = errorMagnitude
	switch {
	case errorMagnitude > snapThreshold:
		p.x, p.y = replayedX, replayedY
	case errorMagnitude >= correctionDeadZone:
		p.x += (replayedX - p.x) * blendFactor
		p.y += (replayedY - p.y) * blendFactor
	}
}

// integrate applies the shared movement formula at the fixed nominal delta,
// matching the server's per-input integration exactly.
func integrate(x, y float64, record InputRecord, rolling bool) (float64, float64) {
	multiplier := 1.0
	if rolling {
		multiplier = rollSpeedMultiplier
	}
	return x + record.MoveX*moveSpeed*multiplier*fixedInputDelta,
		y + record.MoveY*moveSpeed*multiplier*fixedInputDelta
}
