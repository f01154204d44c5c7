package market

import (
	"fmt"
	"math"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
)

// maxClosedRetained bounds the closed-candle history kept per timeframe.
const maxClosedRetained = 500

// Stats is the rolling statistics block for one timeframe. Values are NaN
// when fewer than the configured period of closed candles exist, so callers
// can tell "no trend" apart from "not enough data".
type Stats struct {
	ATR           float64
	TrendSlope    float64
	TrendR2       float64
	TrendStrength float64 // R² signed by slope direction
	Volatility    float64 // stddev of simple returns
	Candles       int
}

// Undefined reports whether the stats carry NaN sentinels.
func (s Stats) Undefined() bool { return math.IsNaN(s.ATR) }

// ClosedCandle is an aggregation event: a derived candle that just closed on
// a higher timeframe.
type ClosedCandle struct {
	Timeframe domrepo.Timeframe
	Candle    models.Candle
}

type bucket struct {
	start  time.Time
	open   float64
	high   float64
	low    float64
	close_ float64
	volume float64
	count  int
}

type series struct {
	dur       time.Duration
	ratio     int // base candles per bucket
	open      *bucket
	closed    []models.Candle
	atr       float64 // Wilder rolling ATR state
	atrCount  int
	atrPeriod int
	prevClose float64
}

// Aggregator builds derived candles and rolling statistics for every
// configured higher timeframe from the base candle stream. Already-closed
// buckets are never revisited; each base candle is folded in O(1) amortized.
type Aggregator struct {
	mu          sync.RWMutex
	base        time.Duration
	order       []domrepo.Timeframe
	series      map[domrepo.Timeframe]*series
	statsPeriod int
}

// NewAggregator creates an aggregator for the given timeframes. The first
// timeframe must be the base resolution; the rest must be multiples of it.
func NewAggregator(tfs []domrepo.Timeframe, statsPeriod int) (*Aggregator, error) {
	if len(tfs) == 0 {
		return nil, fmt.Errorf("no timeframes configured")
	}
	if statsPeriod < 2 {
		return nil, fmt.Errorf("stats period must be >= 2")
	}
	base, err := tfs[0].Duration()
	if err != nil {
		return nil, err
	}
	a := &Aggregator{
		base:        base,
		order:       make([]domrepo.Timeframe, 0, len(tfs)),
		series:      make(map[domrepo.Timeframe]*series, len(tfs)),
		statsPeriod: statsPeriod,
	}
	for _, tf := range tfs {
		dur, err := tf.Duration()
		if err != nil {
			return nil, err
		}
		if dur%base != 0 {
			return nil, fmt.Errorf("timeframe %s is not a multiple of base %s", tf, tfs[0])
		}
		a.order = append(a.order, tf)
		a.series[tf] = &series{dur: dur, ratio: int(dur / base), atrPeriod: statsPeriod}
	}
	return a, nil
}

// Add folds one newly closed base candle into every timeframe bucket and
// returns the derived candles that closed as a result, in timeframe order.
func (a *Aggregator) Add(c models.Candle) []ClosedCandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var events []ClosedCandle
	for _, tf := range a.order {
		s := a.series[tf]
		start := c.OpenTime.Truncate(s.dur)

		if s.open != nil && !s.open.start.Equal(start) {
			// Base feed is gap-checked upstream, so a new bucket start means
			// the previous bucket is complete.
			events = append(events, ClosedCandle{Timeframe: tf, Candle: s.closeBucket()})
		}
		if s.open == nil {
			s.open = &bucket{start: start, open: c.Open, high: c.High, low: c.Low, close_: c.Close, volume: c.Volume, count: 1}
		} else {
			b := s.open
			b.high = math.Max(b.high, c.High)
			b.low = math.Min(b.low, c.Low)
			b.close_ = c.Close
			b.volume += c.Volume
			b.count++
		}
		if s.open.count >= s.ratio {
			events = append(events, ClosedCandle{Timeframe: tf, Candle: s.closeBucket()})
		}
	}
	return events
}

func (s *series) closeBucket() models.Candle {
	b := s.open
	c := models.Candle{
		OpenTime: b.start,
		Open:     b.open,
		High:     b.high,
		Low:      b.low,
		Close:    b.close_,
		Volume:   b.volume,
	}
	s.open = nil

	// Wilder ATR folds the new true range into the rolling average.
	if s.prevClose > 0 {
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-s.prevClose), math.Abs(c.Low-s.prevClose)))
		s.atrCount++
		if s.atrCount == 1 {
			s.atr = tr
		} else {
			n := float64(s.atrCount)
			if s.atrCount > s.atrPeriod {
				n = float64(s.atrPeriod)
			}
			s.atr = (s.atr*(n-1) + tr) / n
		}
	}
	s.prevClose = c.Close

	s.closed = append(s.closed, c)
	if len(s.closed) > maxClosedRetained {
		s.closed = s.closed[len(s.closed)-maxClosedRetained:]
	}
	return c
}

// Closed returns up to n most recent closed candles for tf, oldest first.
func (a *Aggregator) Closed(tf domrepo.Timeframe, n int) []models.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.series[tf]
	if !ok {
		return nil
	}
	if n > len(s.closed) {
		n = len(s.closed)
	}
	if n <= 0 {
		return nil
	}
	out := make([]models.Candle, n)
	copy(out, s.closed[len(s.closed)-n:])
	return out
}

// StatsFor computes the rolling statistics for tf over the last statsPeriod
// closed candles. With insufficient history every value is NaN.
func (a *Aggregator) StatsFor(tf domrepo.Timeframe) Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	nan := math.NaN()
	undefined := Stats{ATR: nan, TrendSlope: nan, TrendR2: nan, TrendStrength: nan, Volatility: nan}

	s, ok := a.series[tf]
	if !ok {
		return undefined
	}
	undefined.Candles = len(s.closed)
	if len(s.closed) < a.statsPeriod {
		return undefined
	}

	window := s.closed[len(s.closed)-a.statsPeriod:]
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}

	slope, r2 := olsFit(closes)
	strength := r2
	if slope < 0 {
		strength = -r2
	}

	return Stats{
		ATR:           s.atr,
		TrendSlope:    slope,
		TrendR2:       r2,
		TrendStrength: strength,
		Volatility:    returnStddev(closes),
		Candles:       len(s.closed),
	}
}

// Timeframes returns the configured timeframes, base first.
func (a *Aggregator) Timeframes() []domrepo.Timeframe {
	out := make([]domrepo.Timeframe, len(a.order))
	copy(out, a.order)
	return out
}

// olsFit returns the slope and R² of an ordinary least-squares fit of ys
// against their indices.
func olsFit(ys []float64) (slope, r2 float64) {
	n := float64(len(ys))
	if n < 2 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range ys {
		pred := intercept + slope*float64(i)
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return slope, 0
	}
	return slope, 1 - ssRes/ssTot
}

// returnStddev computes the sample stddev of simple returns of closes.
func returnStddev(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(rets)-1))
}
