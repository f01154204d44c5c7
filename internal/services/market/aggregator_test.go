package market

import (
	"math"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
)

var aggStart = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func aggCandle(i int, open, high, low, close, volume float64) models.Candle {
	return models.Candle{
		OpenTime: aggStart.Add(time.Duration(i) * time.Minute),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
	}
}

func newTestAggregator(t *testing.T, statsPeriod int) *Aggregator {
	t.Helper()
	a, err := NewAggregator([]domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m}, statsPeriod)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestBaseTimeframeClosesEveryCandle(t *testing.T) {
	a := newTestAggregator(t, 3)
	for i := 0; i < 3; i++ {
		events := a.Add(aggCandle(i, 100, 101, 99, 100.5, 10))
		found := false
		for _, ev := range events {
			if ev.Timeframe == domrepo.TF1m {
				found = true
			}
		}
		if !found {
			t.Fatalf("candle %d: no base close event", i)
		}
	}
}

func TestFiveMinuteAggregation(t *testing.T) {
	a := newTestAggregator(t, 3)

	var fives []models.Candle
	for i := 0; i < 10; i++ {
		c := aggCandle(i, 100+float64(i), 102+float64(i), 98+float64(i), 101+float64(i), 10)
		for _, ev := range a.Add(c) {
			if ev.Timeframe == domrepo.TF5m {
				fives = append(fives, ev.Candle)
			}
		}
	}

	if len(fives) != 2 {
		t.Fatalf("expected 2 closed 5m candles, got %d", len(fives))
	}
	first := fives[0]
	if !first.OpenTime.Equal(aggStart) {
		t.Fatalf("first 5m open time: got %v want %v", first.OpenTime, aggStart)
	}
	if first.Open != 100 {
		t.Fatalf("5m open: got %v want 100", first.Open)
	}
	if first.High != 106 { // candle 4: 102+4
		t.Fatalf("5m high: got %v want 106", first.High)
	}
	if first.Low != 98 {
		t.Fatalf("5m low: got %v want 98", first.Low)
	}
	if first.Close != 105 { // candle 4: 101+4
		t.Fatalf("5m close: got %v want 105", first.Close)
	}
	if first.Volume != 50 {
		t.Fatalf("5m volume: got %v want 50", first.Volume)
	}
}

func TestStatsUndefinedUntilPeriod(t *testing.T) {
	a := newTestAggregator(t, 3)

	a.Add(aggCandle(0, 99, 100.5, 98.5, 100, 10))
	a.Add(aggCandle(1, 100, 101.5, 99.5, 101, 10))
	if !a.StatsFor(domrepo.TF1m).Undefined() {
		t.Fatalf("stats defined with fewer closed candles than period")
	}

	a.Add(aggCandle(2, 101, 102.5, 100.5, 102, 10))
	stats := a.StatsFor(domrepo.TF1m)
	if stats.Undefined() {
		t.Fatalf("stats still undefined at period")
	}
	if math.Abs(stats.TrendSlope-1) > 1e-9 {
		t.Fatalf("trend slope: got %v want 1", stats.TrendSlope)
	}
	if stats.TrendStrength <= 0.99 {
		t.Fatalf("trend strength for perfect uptrend: got %v", stats.TrendStrength)
	}
	if stats.ATR <= 0 {
		t.Fatalf("ATR not accumulated: %v", stats.ATR)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	feed := func(a *Aggregator) ([]models.Candle, Stats) {
		for i := 0; i < 12; i++ {
			close := 100 + math.Sin(float64(i))*3
			a.Add(aggCandle(i, close-0.5, close+1, close-1.5, close, 10+float64(i%4)))
		}
		return a.Closed(domrepo.TF5m, 10), a.StatsFor(domrepo.TF1m)
	}

	c1, s1 := feed(newTestAggregator(t, 5))
	c2, s2 := feed(newTestAggregator(t, 5))

	if len(c1) != len(c2) || len(c1) != 2 {
		t.Fatalf("closed 5m counts differ: %d vs %d", len(c1), len(c2))
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("5m candle %d differs: %+v vs %+v", i, c1[i], c2[i])
		}
	}
	if s1.ATR != s2.ATR || s1.TrendSlope != s2.TrendSlope || s1.Volatility != s2.Volatility {
		t.Fatalf("stats differ across replays: %+v vs %+v", s1, s2)
	}
}

func TestRejectsNonMultipleTimeframe(t *testing.T) {
	if _, err := NewAggregator([]domrepo.Timeframe{domrepo.TF5m, domrepo.TF1m}, 3); err == nil {
		t.Fatalf("expected error for timeframe smaller than base")
	}
}
