package models

import (
	"math"
	"time"
)

// Candle represents a closed OHLCV bar. Candles are immutable once closed;
// derived properties are computed on demand so they can never go stale.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Body returns the absolute body size.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// UpperWick returns the upper shadow size.
func (c Candle) UpperWick() float64 { return c.High - math.Max(c.Open, c.Close) }

// LowerWick returns the lower shadow size.
func (c Candle) LowerWick() float64 { return math.Min(c.Open, c.Close) - c.Low }

// Range returns the total high-low range.
func (c Candle) Range() float64 { return c.High - c.Low }

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// BodyRatio returns body / range, or 0 for a zero-range candle.
func (c Candle) BodyRatio() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.Body() / r
}

// UpperWickRatio returns upper wick / range, or 0 for a zero-range candle.
func (c Candle) UpperWickRatio() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.UpperWick() / r
}

// LowerWickRatio returns lower wick / range, or 0 for a zero-range candle.
func (c Candle) LowerWickRatio() float64 {
	r := c.Range()
	if r == 0 {
		return 0
	}
	return c.LowerWick() / r
}

// TypicalPrice returns (high + low + close) / 3.
func (c Candle) TypicalPrice() float64 { return (c.High + c.Low + c.Close) / 3 }

// Valid reports whether the candle carries a consistent OHLCV payload.
func (c Candle) Valid() bool {
	if c.OpenTime.IsZero() || c.Volume < 0 {
		return false
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.High < c.Low || c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return true
}

// TrajectoryPoint is one sample of the psi trajectory window: a sequence
// index on the time axis joined with price and volume at that index.
type TrajectoryPoint struct {
	Index  int
	Price  float64
	Volume float64
}
