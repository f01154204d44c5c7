// Package psi implements the psi-frequency momentum calculator: a single
// directional scalar derived from the joint evolution of price and volume
// over a sliding trajectory window.
package psi

import (
	"math"

	"PsiPulse/internal/domain/models"
)

// Params configures the engine. Weights apply to price and volume momentum
// before the wave-strength factor and sensitivity multiplier.
type Params struct {
	Window       int
	Sensitivity  float64
	Threshold    float64
	PriceWeight  float64
	VolumeWeight float64
	Bound        float64 // |psi| is clipped to this bound
}

// Engine maintains the trajectory window and produces one PsiReading per
// closed base candle. The reading is a pure function of the window contents
// and the previous reading's sign; replaying the same candle sequence on a
// fresh engine reproduces identical readings.
type Engine struct {
	params  Params
	window  []models.TrajectoryPoint
	nextIdx int
	prevPsi float64
}

// NewEngine creates an engine with the given parameters.
func NewEngine(p Params) *Engine {
	if p.Bound <= 0 {
		p.Bound = 1.0
	}
	return &Engine{
		params: p,
		window: make([]models.TrajectoryPoint, 0, p.Window),
	}
}

// Observe appends the closed candle to the trajectory window and computes
// the next reading. Until the window is full the reading is flat with value
// zero and no swing.
func (e *Engine) Observe(c models.Candle) models.PsiReading {
	pt := models.TrajectoryPoint{Index: e.nextIdx, Price: c.Close, Volume: c.Volume}
	e.nextIdx++
	if len(e.window) == e.params.Window {
		copy(e.window, e.window[1:])
		e.window[len(e.window)-1] = pt
	} else {
		e.window = append(e.window, pt)
	}

	reading := models.PsiReading{Direction: models.DirectionFlat, Timestamp: c.OpenTime}
	if len(e.window) < e.params.Window {
		return reading
	}

	value := e.compute()
	reading.Value = value

	switch {
	case value > 0:
		reading.Direction = models.DirectionUp
	case value < 0:
		reading.Direction = models.DirectionDown
	}

	// A swing needs a sign flip against the previous reading and magnitude
	// above the threshold. Warmup readings count as flat zero, so the first
	// reading that crosses the threshold out of warmup flags a swing.
	if math.Abs(value) >= e.params.Threshold {
		if (value > 0 && e.prevPsi <= 0) || (value < 0 && e.prevPsi >= 0) {
			reading.SwingDetected = true
		}
	}

	e.prevPsi = value
	return reading
}

// compute evaluates psi over the full window.
func (e *Engine) compute() float64 {
	prices := make([]float64, len(e.window))
	volumes := make([]float64, len(e.window))
	for i, pt := range e.window {
		prices[i] = pt.Price
		volumes[i] = pt.Volume
	}

	pm := normalizedSlope(prices)
	vm := normalizedSlope(volumes)
	ws := waveStrength(prices)

	p := e.params
	psi := p.Sensitivity * (p.PriceWeight*pm + p.VolumeWeight*vm) * ws

	if psi > p.Bound {
		psi = p.Bound
	} else if psi < -p.Bound {
		psi = -p.Bound
	}
	return psi
}

// Trajectory returns velocity plus sensitivity-scaled acceleration for each
// window point, the series used for direction smoothing.
func (e *Engine) Trajectory() []float64 {
	n := len(e.window)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	vel := make([]float64, n)
	for i := 1; i < n; i++ {
		vel[i] = e.window[i].Price - e.window[i-1].Price
	}
	for i := 1; i < n; i++ {
		acc := 0.0
		if i >= 2 {
			acc = vel[i] - vel[i-1]
		}
		out[i] = vel[i] + acc*e.params.Sensitivity
	}
	return out
}

// Reset clears all window state.
func (e *Engine) Reset() {
	e.window = e.window[:0]
	e.nextIdx = 0
	e.prevPsi = 0
}

// normalizedSlope fits an OLS line through ys and scales the slope by the
// window mean, yielding a per-step relative rate of change.
func normalizedSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
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
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	mean := sumY / n
	if mean == 0 {
		return 0
	}
	return slope / math.Abs(mean) * n
}

// waveStrength is the directness of the window: net displacement over
// cumulative absolute path length. 1.0 is a monotonic move, values near 0
// mean pure oscillation.
func waveStrength(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	var path float64
	for i := 1; i < len(prices); i++ {
		path += math.Abs(prices[i] - prices[i-1])
	}
	if path == 0 {
		return 0
	}
	net := math.Abs(prices[len(prices)-1] - prices[0])
	return net / path
}
