package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/internal/service/exchange"
	"PsiPulse/internal/services/features"
	"PsiPulse/internal/services/fuse"
	"PsiPulse/internal/services/market"
	"PsiPulse/internal/services/position"
	"PsiPulse/internal/services/psi"
	"PsiPulse/pkg/logger"
)

type stubClassifier struct {
	out models.ClassifierOutput
	err error
}

func (s stubClassifier) Infer(context.Context, models.FeatureVector) (models.ClassifierOutput, error) {
	return s.out, s.err
}

var testStart = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testCandle(i int, close float64) models.Candle {
	low := close - 1.5
	return models.Candle{
		OpenTime: testStart.Add(time.Duration(i) * time.Minute),
		Open:     close - 1,
		High:     close + 0.5,
		Low:      low,
		Close:    close,
		Volume:   1000,
	}
}

func newTestEngine(t *testing.T, trend, action stubClassifier) *Engine {
	t.Helper()

	store := market.NewCandleStore("BTCUSDT", time.Minute, 512)
	agg, err := market.NewAggregator([]domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m}, 14)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	psiEng := psi.NewEngine(psi.Params{
		Window:       3,
		Sensitivity:  10,
		Threshold:    0.05,
		PriceWeight:  0.4,
		VolumeWeight: 0.3,
		Bound:        1,
	})
	asm, err := features.NewAssembler(10, 50, 57)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}

	venue := exchange.NewPaperExchange("BTCUSDT", 10000,
		exchange.WithFeeRate(0), exchange.WithSlippage(0))
	manager, err := position.NewManager(position.Params{
		Symbol:              "BTCUSDT",
		Leverage:            5,
		MaxPyramidLevels:    3,
		PositionSizePercent: 2,
		MinPositionValue:    10,
		PyramidMinGainPct:   0.5,
		StopLossPercent:     1.5,
		TakeProfitPercent:   3,
		TrailingPercent:     1,
		LockInPercent:       1,
		MaxDailyLossPercent: 5,
	}, venue, venue, nil, logger.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Start(context.Background(), testStart); err != nil {
		t.Fatalf("Start: %v", err)
	}

	eng, err := NewEngine(Deps{
		Symbol:        "BTCUSDT",
		RecentCandles: 10,
		Store:         store,
		Agg:           agg,
		Psi:           psiEng,
		Assembler:     asm,
		Trend:         trend,
		Action:        action,
		Fuser:         fuse.NewFuser(0.6, 0.65, 0.05),
		Manager:       manager,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestWarmupHoldsThenEnters(t *testing.T) {
	eng := newTestEngine(t,
		stubClassifier{out: models.ClassifierOutput{Label: string(models.TrendBullish), Confidence: 0.9}},
		stubClassifier{out: models.ClassifierOutput{Label: string(models.ActionBuy), Confidence: 0.9}},
	)
	ctx := context.Background()

	for i, close := range []float64{100, 101} {
		d, err := eng.ProcessCandle(ctx, testCandle(i, close))
		if err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
		if d.Action != models.DecisionHold {
			t.Fatalf("candle %d: expected hold during warmup, got %s", i, d.Action)
		}
	}
	if eng.Position() != nil {
		t.Fatalf("position opened during warmup")
	}

	d, err := eng.ProcessCandle(ctx, testCandle(2, 102))
	if err != nil {
		t.Fatalf("candle 2: %v", err)
	}
	if d.Action != models.DecisionEnterLong {
		t.Fatalf("expected enter_long once psi window filled, got %s (%s)", d.Action, d.Reason)
	}
	pos := eng.Position()
	if pos == nil || pos.Side != models.SideLong {
		t.Fatalf("expected open long position, got %+v", pos)
	}
	if pos.EntryPrice != 102 {
		t.Fatalf("entry price: got %v want 102", pos.EntryPrice)
	}
}

func TestInferenceFailureDegradesToHold(t *testing.T) {
	eng := newTestEngine(t,
		stubClassifier{err: errors.New("service unavailable")},
		stubClassifier{out: models.ClassifierOutput{Label: string(models.ActionBuy), Confidence: 0.9}},
	)
	ctx := context.Background()

	for i, close := range []float64{100, 101, 102} {
		d, err := eng.ProcessCandle(ctx, testCandle(i, close))
		if err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
		if d.Action != models.DecisionHold {
			t.Fatalf("candle %d: expected hold on inference failure, got %s", i, d.Action)
		}
	}
	if eng.Position() != nil {
		t.Fatalf("position opened despite failing classifier")
	}
}

func TestRejectedCandleDoesNotAdvance(t *testing.T) {
	eng := newTestEngine(t,
		stubClassifier{out: models.ClassifierOutput{Label: string(models.TrendNeutral), Confidence: 0.9}},
		stubClassifier{out: models.ClassifierOutput{Label: string(models.ActionHold), Confidence: 0.9}},
	)
	ctx := context.Background()

	if _, err := eng.ProcessCandle(ctx, testCandle(0, 100)); err != nil {
		t.Fatalf("first candle: %v", err)
	}
	if _, err := eng.ProcessCandle(ctx, testCandle(0, 100)); !errors.Is(err, models.ErrCandleDuplicate) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if got := eng.Cycles(); got != 1 {
		t.Fatalf("cycle count advanced on rejected candle: %d", got)
	}

	gap := testCandle(5, 100)
	if _, err := eng.ProcessCandle(ctx, gap); !errors.Is(err, models.ErrCandleOutOfOrder) {
		t.Fatalf("expected gap rejection, got %v", err)
	}
}

func TestDeterministicReplay(t *testing.T) {
	mk := func() *Engine {
		return newTestEngine(t,
			stubClassifier{out: models.ClassifierOutput{Label: string(models.TrendBullish), Confidence: 0.8}},
			stubClassifier{out: models.ClassifierOutput{Label: string(models.ActionBuy), Confidence: 0.8}},
		)
	}
	closes := []float64{100, 101, 102, 101.5, 103, 104, 103.2, 105}

	run := func(eng *Engine) []string {
		ctx := context.Background()
		out := make([]string, 0, len(closes))
		for i, close := range closes {
			d, err := eng.ProcessCandle(ctx, testCandle(i, close))
			if err != nil {
				t.Fatalf("candle %d: %v", i, err)
			}
			out = append(out, fmt.Sprintf("%s|%.12f", d.Action, d.PsiValue))
		}
		return out
	}

	first := run(mk())
	second := run(mk())
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay diverged at cycle %d: %q vs %q", i, first[i], second[i])
		}
	}
}
