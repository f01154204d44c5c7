package features

import (
	"math"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
	"PsiPulse/internal/services/market"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := NewAssembler(10, 50, 57)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return a
}

func seqCandles(n int) []models.Candle {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		open := 100.0 + float64(i)
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     open,
			High:     open + 2,
			Low:      open - 1,
			Close:    open + 1,
			Volume:   10 + float64(i),
		}
	}
	return out
}

func definedStats() market.Stats {
	return market.Stats{ATR: 1.5, TrendSlope: 0.8, TrendR2: 0.9, TrendStrength: 0.9, Volatility: 0.01, Candles: 20}
}

func TestNewAssemblerRejectsSizeMismatch(t *testing.T) {
	if _, err := NewAssembler(10, 50, 60); err == nil {
		t.Fatal("expected error for mismatched vector size")
	}
	if _, err := NewAssembler(12, 50, 57); err == nil {
		t.Fatal("expected error when candles overflow the sequence span")
	}
}

func TestAssembleFixedWidth(t *testing.T) {
	a := newTestAssembler(t)

	full := a.Assemble(seqCandles(10), definedStats(), 0.42)
	if full.Len() != 57 {
		t.Fatalf("vector length = %d, want 57", full.Len())
	}
	if len(full.Names) != 57 {
		t.Fatalf("name count = %d, want 57", len(full.Names))
	}

	// Fewer candles than the window must still yield the full width.
	short := a.Assemble(seqCandles(3), definedStats(), 0.42)
	if short.Len() != 57 {
		t.Fatalf("short-history vector length = %d, want 57", short.Len())
	}
}

func TestAssemblePadsWithSentinel(t *testing.T) {
	a := newTestAssembler(t)

	v := a.Assemble(seqCandles(3), definedStats(), 0.1)
	// 3 candles occupy 15 slots; slots 15..49 are padding.
	for i := 15; i < 50; i++ {
		if v.Values[i] != models.FeatureSentinel {
			t.Fatalf("values[%d] = %v, want sentinel", i, v.Values[i])
		}
	}
}

func TestAssembleSanitizesUndefinedStats(t *testing.T) {
	a := newTestAssembler(t)

	nan := math.NaN()
	v := a.Assemble(seqCandles(10), market.Stats{ATR: nan, TrendStrength: nan, Volatility: nan}, 0.2)
	for i, x := range v.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("values[%d] (%s) = %v, want sanitized", i, v.Names[i], x)
		}
	}
}

func TestAssemblePsiIsLast(t *testing.T) {
	a := newTestAssembler(t)

	v := a.Assemble(seqCandles(10), definedStats(), -0.73)
	if v.Names[len(v.Names)-1] != "psi" {
		t.Fatalf("last feature = %s, want psi", v.Names[len(v.Names)-1])
	}
	if v.Values[len(v.Values)-1] != -0.73 {
		t.Fatalf("psi value = %v, want -0.73", v.Values[len(v.Values)-1])
	}
}

func TestAssembleUsesTrailingCandles(t *testing.T) {
	a := newTestAssembler(t)

	candles := seqCandles(30)
	v := a.Assemble(candles, definedStats(), 0)

	// First slot is the body of the oldest encoded candle, i.e. candles[20].
	want := candles[20].Body()
	if v.Values[0] != want {
		t.Fatalf("values[0] = %v, want %v (body of candles[20])", v.Values[0], want)
	}
	if !v.At.Equal(candles[29].OpenTime) {
		t.Fatalf("At = %s, want %s", v.At, candles[29].OpenTime)
	}
}
