package fuse

import (
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
)

var fuseTime = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func newTestFuser() *Fuser {
	return NewFuser(0.6, 0.65, 0.7)
}

func psiReading(value float64) models.PsiReading {
	dir := models.DirectionFlat
	switch {
	case value > 0:
		dir = models.DirectionUp
	case value < 0:
		dir = models.DirectionDown
	}
	return models.PsiReading{Value: value, Direction: dir, Timestamp: fuseTime}
}

func out(label string, conf float64) models.ClassifierOutput {
	return models.ClassifierOutput{Label: label, Confidence: conf}
}

func longPosition() *models.Position {
	return &models.Position{Symbol: "BTCUSDT", Side: models.SideLong, EntryPrice: 50000, Size: 0.1, PyramidLevel: 1}
}

func TestFuseAgreementEntersLong(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bullish", 0.8), out("buy", 0.75), psiReading(0.82), nil)
	if d.Action != models.DecisionEnterLong {
		t.Fatalf("action = %s, want enter_long", d.Action)
	}
	if d.Confidence != 0.75 {
		t.Fatalf("confidence = %v, want min of pair 0.75", d.Confidence)
	}
}

func TestFuseAgreementEntersShort(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bearish", 0.9), out("sell", 0.7), psiReading(-0.8), nil)
	if d.Action != models.DecisionEnterShort {
		t.Fatalf("action = %s, want enter_short", d.Action)
	}
}

func TestFuseDisagreementHolds(t *testing.T) {
	f := newTestFuser()

	cases := []struct {
		name          string
		trend, action models.ClassifierOutput
	}{
		{"bullish_sell", out("bullish", 0.9), out("sell", 0.9)},
		{"bearish_buy", out("bearish", 0.9), out("buy", 0.9)},
		{"neutral_buy", out("neutral", 0.9), out("buy", 0.9)},
		{"bullish_hold", out("bullish", 0.9), out("hold", 0.9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := f.Fuse(tc.trend, tc.action, psiReading(0.9), nil)
			if d.Action != models.DecisionHold {
				t.Fatalf("action = %s, want hold", d.Action)
			}
		})
	}
}

func TestFuseLowConfidenceHolds(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bullish", 0.59), out("buy", 0.9), psiReading(0.9), nil)
	if d.Action != models.DecisionHold {
		t.Fatalf("action with low trend confidence = %s, want hold", d.Action)
	}

	d = f.Fuse(out("bullish", 0.9), out("buy", 0.64), psiReading(0.9), nil)
	if d.Action != models.DecisionHold {
		t.Fatalf("action with low action confidence = %s, want hold", d.Action)
	}
}

func TestFusePsiBelowThresholdHolds(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bullish", 0.9), out("buy", 0.9), psiReading(0.5), nil)
	if d.Action != models.DecisionHold {
		t.Fatalf("action with |psi| below threshold = %s, want hold", d.Action)
	}
}

func TestFuseOpposingFlipExitsRegardlessOfPsi(t *testing.T) {
	f := newTestFuser()

	// Psi is far below the entry threshold; exits ignore it.
	d := f.Fuse(out("bearish", 0.7), out("hold", 0.5), psiReading(0.01), longPosition())
	if d.Action != models.DecisionExit {
		t.Fatalf("action on opposing trend flip = %s, want exit", d.Action)
	}

	d = f.Fuse(out("neutral", 0.5), out("sell", 0.8), psiReading(0.01), longPosition())
	if d.Action != models.DecisionExit {
		t.Fatalf("action on opposing action flip = %s, want exit", d.Action)
	}
}

func TestFuseOpposingFlipBelowMinimumHolds(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bearish", 0.4), out("hold", 0.5), psiReading(0.01), longPosition())
	if d.Action != models.DecisionHold {
		t.Fatalf("action on weak opposing flip = %s, want hold", d.Action)
	}
}

func TestFuseContinuationProposesAdd(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("bullish", 0.8), out("buy", 0.8), psiReading(0.9), longPosition())
	if d.Action != models.DecisionAdd {
		t.Fatalf("action on continuing signal = %s, want add", d.Action)
	}
}

func TestFuseMalformedOutputHolds(t *testing.T) {
	f := newTestFuser()

	d := f.Fuse(out("sideways", 0.9), out("buy", 0.9), psiReading(0.9), nil)
	if d.Action != models.DecisionHold {
		t.Fatalf("action with unknown trend label = %s, want hold", d.Action)
	}

	d = f.Fuse(out("bullish", 1.4), out("buy", 0.9), psiReading(0.9), nil)
	if d.Action != models.DecisionHold {
		t.Fatalf("action with out-of-range confidence = %s, want hold", d.Action)
	}
}
