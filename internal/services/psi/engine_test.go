package psi

import (
	"math"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
)

func testParams() Params {
	return Params{
		Window:       3,
		Sensitivity:  10,
		Threshold:    0.05,
		PriceWeight:  0.4,
		VolumeWeight: 0.3,
		Bound:        1.0,
	}
}

func candleAt(i int, close, volume float64) models.Candle {
	open := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return models.Candle{
		OpenTime: open,
		Open:     close,
		High:     close + 1,
		Low:      close - 1,
		Close:    close,
		Volume:   volume,
	}
}

func TestObserveWarmupIsFlat(t *testing.T) {
	e := NewEngine(testParams())

	for i := 0; i < 2; i++ {
		r := e.Observe(candleAt(i, 100+float64(i), 10))
		if r.Value != 0 || r.Direction != models.DirectionFlat || r.SwingDetected {
			t.Fatalf("reading %d during warmup = %+v, want flat zero", i, r)
		}
	}
}

func TestObserveRisingWindowIsPositive(t *testing.T) {
	e := NewEngine(testParams())

	var r models.PsiReading
	for i := 0; i < 4; i++ {
		r = e.Observe(candleAt(i, 100+float64(i), 10+float64(i)))
	}
	if r.Value <= 0 {
		t.Fatalf("psi over rising prices and volumes = %v, want > 0", r.Value)
	}
	if r.Direction != models.DirectionUp {
		t.Fatalf("direction = %s, want %s", r.Direction, models.DirectionUp)
	}
}

func TestObserveRoundTripHasZeroPsi(t *testing.T) {
	e := NewEngine(testParams())

	e.Observe(candleAt(0, 100, 10))
	e.Observe(candleAt(1, 105, 10))
	r := e.Observe(candleAt(2, 100, 10))

	// Net displacement is zero, so wave strength annihilates the slope term.
	if r.Value != 0 {
		t.Fatalf("psi over a round trip = %v, want 0", r.Value)
	}
	if r.Direction != models.DirectionFlat {
		t.Fatalf("direction = %s, want %s", r.Direction, models.DirectionFlat)
	}
}

func TestObserveClipsToBound(t *testing.T) {
	p := testParams()
	p.Sensitivity = 1000
	e := NewEngine(p)

	var r models.PsiReading
	for i := 0; i < 3; i++ {
		r = e.Observe(candleAt(i, 100+float64(i)*10, 10+float64(i)*5))
	}
	if math.Abs(r.Value) > p.Bound {
		t.Fatalf("|psi| = %v exceeds bound %v", math.Abs(r.Value), p.Bound)
	}
	if r.Value != p.Bound {
		t.Fatalf("psi = %v, want saturated at %v", r.Value, p.Bound)
	}
}

func TestSwingRequiresSignFlipAboveThreshold(t *testing.T) {
	e := NewEngine(testParams())

	// Warmup readings are flat zero and never swing.
	for i, close := range []float64{100, 101} {
		if r := e.Observe(candleAt(i, close, 10+float64(i))); r.SwingDetected {
			t.Fatalf("swing during warmup at candle %d: %+v", i, r)
		}
	}

	// The first full-window reading crosses the threshold from flat zero,
	// which counts as a sign flip.
	r := e.Observe(candleAt(2, 102, 12))
	if r.Value < testParams().Threshold {
		t.Fatalf("psi at full window = %v, want >= threshold", r.Value)
	}
	if !r.SwingDetected {
		t.Fatalf("expected swing on first threshold crossing, got %+v", r)
	}

	// Continuing up keeps the sign, so no second swing fires.
	r = e.Observe(candleAt(3, 103, 13))
	if r.SwingDetected {
		t.Fatalf("swing repeated without a sign flip: %+v", r)
	}

	// Hard reversal flips the sign with magnitude well past the threshold.
	r = e.Observe(candleAt(4, 90, 5))
	if r.Value >= 0 {
		t.Fatalf("psi after reversal = %v, want negative", r.Value)
	}
	if !r.SwingDetected {
		t.Fatalf("expected swing on sign flip, got %+v", r)
	}

	// Continuing down keeps the sign, so no second swing fires.
	r = e.Observe(candleAt(5, 85, 4))
	if r.SwingDetected {
		t.Fatalf("swing repeated without a sign flip: %+v", r)
	}
}

func TestSwingOnMonotonicRiseAtFullWindow(t *testing.T) {
	p := Params{
		Window:       20,
		Sensitivity:  1.5,
		Threshold:    0.1,
		PriceWeight:  0.4,
		VolumeWeight: 0.3,
		Bound:        1.0,
	}
	e := NewEngine(p)

	var r models.PsiReading
	for i := 0; i < 20; i++ {
		r = e.Observe(candleAt(i, 100+float64(i), 10+float64(i)))
		if i < 19 && r.SwingDetected {
			t.Fatalf("swing during warmup at candle %d: %+v", i, r)
		}
	}
	if r.Direction != models.DirectionUp {
		t.Fatalf("direction = %s, want %s", r.Direction, models.DirectionUp)
	}
	if math.Abs(r.Value) < p.Threshold {
		t.Fatalf("psi = %v, want |psi| >= %v", r.Value, p.Threshold)
	}
	if !r.SwingDetected {
		t.Fatalf("no swing on the first above-threshold reading: %+v", r)
	}
}

func TestNoSwingBelowThreshold(t *testing.T) {
	p := testParams()
	p.Threshold = 0.9
	p.Sensitivity = 0.1
	e := NewEngine(p)

	for i, close := range []float64{100, 101, 102, 103} {
		e.Observe(candleAt(i, close, 10))
	}
	r := e.Observe(candleAt(4, 99, 10))
	if r.Value >= 0 {
		t.Fatalf("psi after reversal = %v, want negative", r.Value)
	}
	if r.SwingDetected {
		t.Fatalf("swing fired below threshold: value=%v threshold=%v", r.Value, p.Threshold)
	}
}

func TestObserveIsDeterministic(t *testing.T) {
	closes := []float64{100, 102, 101, 105, 103, 108, 104, 99, 97, 101}
	volumes := []float64{10, 12, 9, 20, 15, 25, 8, 30, 28, 11}

	run := func() []models.PsiReading {
		e := NewEngine(testParams())
		out := make([]models.PsiReading, 0, len(closes))
		for i := range closes {
			out = append(out, e.Observe(candleAt(i, closes[i], volumes[i])))
		}
		return out
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("reading %d differs between replays: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestResetClearsWindow(t *testing.T) {
	e := NewEngine(testParams())
	for i := 0; i < 5; i++ {
		e.Observe(candleAt(i, 100+float64(i), 10))
	}
	e.Reset()

	r := e.Observe(candleAt(10, 200, 50))
	if r.Value != 0 || r.Direction != models.DirectionFlat {
		t.Fatalf("reading after reset = %+v, want warmup flat", r)
	}
}

func TestTrajectoryLength(t *testing.T) {
	e := NewEngine(testParams())
	for i := 0; i < 3; i++ {
		e.Observe(candleAt(i, 100+float64(i), 10))
	}
	traj := e.Trajectory()
	if len(traj) != 3 {
		t.Fatalf("trajectory length = %d, want 3", len(traj))
	}
	if traj[0] != 0 {
		t.Fatalf("trajectory[0] = %v, want 0", traj[0])
	}
}
