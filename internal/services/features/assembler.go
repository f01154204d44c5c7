// Package features assembles the fixed-width vector consumed by the
// trend and action classifiers.
package features

import (
	"fmt"
	"math"
	"time"

	"PsiPulse/internal/domain/models"
	"PsiPulse/internal/services/market"
)

const perCandleFeatures = 5

var perCandleNames = [perCandleFeatures]string{
	"body_size",
	"body_ratio",
	"is_bullish",
	"upper_wick_ratio",
	"lower_wick_ratio",
}

var sequenceNames = []string{
	"price_change_pct",
	"volume_trend",
	"atr",
	"volatility",
	"trend_strength",
	"bullish_ratio",
}

// Assembler builds feature vectors in one fixed layout: per-candle features
// for the most recent candles zero-padded to the sequence span, then the
// sequence block, then psi. The layout is established once at construction;
// Assemble never reorders it.
type Assembler struct {
	recentCandles int
	sequenceSpan  int
	names         []string
}

// NewAssembler validates the configured geometry against wantSize and
// precomputes the feature name list. A size mismatch is a wiring bug and is
// rejected at startup rather than discovered at inference time.
func NewAssembler(recentCandles, sequenceSpan, wantSize int) (*Assembler, error) {
	if recentCandles <= 0 || sequenceSpan < recentCandles*perCandleFeatures {
		return nil, fmt.Errorf("invalid feature geometry: recent=%d span=%d", recentCandles, sequenceSpan)
	}
	size := sequenceSpan + len(sequenceNames) + 1
	if size != wantSize {
		return nil, fmt.Errorf("feature vector size %d does not match configured %d", size, wantSize)
	}

	names := make([]string, 0, size)
	for i := 0; i < recentCandles; i++ {
		for _, n := range perCandleNames {
			names = append(names, fmt.Sprintf("c%d_%s", i, n))
		}
	}
	for len(names) < sequenceSpan {
		names = append(names, fmt.Sprintf("pad_%d", len(names)))
	}
	names = append(names, sequenceNames...)
	names = append(names, "psi")

	return &Assembler{
		recentCandles: recentCandles,
		sequenceSpan:  sequenceSpan,
		names:         names,
	}, nil
}

// Size returns the total vector width.
func (a *Assembler) Size() int { return len(a.names) }

// Assemble builds the vector from the most recent base candles, the base
// timeframe statistics, and the current psi value. Candles must be in
// chronological order; only the trailing recentCandles are encoded. Missing
// candles and undefined statistics degrade to the sentinel value, never NaN.
func (a *Assembler) Assemble(candles []models.Candle, stats market.Stats, psi float64) models.FeatureVector {
	values := make([]float64, 0, len(a.names))

	window := candles
	if len(window) > a.recentCandles {
		window = window[len(window)-a.recentCandles:]
	}

	for _, c := range window {
		bullish := 0.0
		if c.IsBullish() {
			bullish = 1.0
		}
		values = append(values,
			c.Body(),
			c.BodyRatio(),
			bullish,
			c.UpperWickRatio(),
			c.LowerWickRatio(),
		)
	}
	for len(values) < a.sequenceSpan {
		values = append(values, models.FeatureSentinel)
	}

	values = append(values,
		priceChangePct(window),
		volumeTrend(window),
		stats.ATR,
		stats.Volatility,
		stats.TrendStrength,
		bullishRatio(window),
	)
	values = append(values, psi)

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = models.FeatureSentinel
		}
	}

	return models.FeatureVector{Names: a.names, Values: values, At: lastOpenTime(window)}
}

func priceChangePct(candles []models.Candle) float64 {
	if len(candles) < 2 || candles[0].Close == 0 {
		return 0
	}
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	return (last - first) / first * 100
}

// volumeTrend is the OLS slope of volume normalized by mean volume, the same
// per-step relative rate used for psi momentum.
func volumeTrend(candles []models.Candle) float64 {
	n := float64(len(candles))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, c := range candles {
		x := float64(i)
		sumX += x
		sumY += c.Volume
		sumXY += x * c.Volume
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	mean := sumY / n
	if denom == 0 || mean == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return slope / mean
}

func bullishRatio(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	bullish := 0
	for _, c := range candles {
		if c.IsBullish() {
			bullish++
		}
	}
	return float64(bullish) / float64(len(candles))
}

func lastOpenTime(candles []models.Candle) time.Time {
	if len(candles) == 0 {
		return time.Time{}
	}
	return candles[len(candles)-1].OpenTime
}
