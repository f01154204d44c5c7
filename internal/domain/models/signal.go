package models

import (
	"math"
	"time"
)

// Direction is the direction component of a psi reading.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// PsiReading is one psi-frequency observation, produced once per closed base
// candle.
type PsiReading struct {
	Value         float64
	Direction     Direction
	SwingDetected bool
	Timestamp     time.Time
}

// TrendLabel is the output label space of the trend classifier.
type TrendLabel string

const (
	TrendBullish TrendLabel = "bullish"
	TrendNeutral TrendLabel = "neutral"
	TrendBearish TrendLabel = "bearish"
)

// ActionLabel is the output label space of the action classifier.
type ActionLabel string

const (
	ActionBuy  ActionLabel = "buy"
	ActionSell ActionLabel = "sell"
	ActionHold ActionLabel = "hold"
)

// ClassifierOutput is a single inference result: a categorical label with a
// confidence in [0, 1].
type ClassifierOutput struct {
	Label      string
	Confidence float64
}

// Valid reports whether the output is well formed for the given label space.
func (o ClassifierOutput) Valid(labels ...string) bool {
	if o.Confidence < 0 || o.Confidence > 1 || math.IsNaN(o.Confidence) {
		return false
	}
	for _, l := range labels {
		if o.Label == l {
			return true
		}
	}
	return false
}

// DecisionAction is the fused action space driving the position manager.
type DecisionAction string

const (
	DecisionEnterLong  DecisionAction = "enter_long"
	DecisionEnterShort DecisionAction = "enter_short"
	DecisionAdd        DecisionAction = "add"
	DecisionHold       DecisionAction = "hold"
	DecisionExit       DecisionAction = "exit"
)

// Decision is the fused output of both classifiers and the current psi
// reading. Derived per cycle, never persisted.
type Decision struct {
	Action     DecisionAction
	Confidence float64
	PsiValue   float64
	Reason     string
	Timestamp  time.Time
}

// HoldDecision builds the default cautious decision.
func HoldDecision(psi float64, reason string, ts time.Time) Decision {
	return Decision{Action: DecisionHold, PsiValue: psi, Reason: reason, Timestamp: ts}
}
