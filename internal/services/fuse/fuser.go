// Package fuse combines the two classifier outputs and the current psi
// reading into a single Decision. Any ambiguity resolves to hold; the fuser
// never proposes an aggressive action on disagreement.
package fuse

import (
	"math"

	"PsiPulse/internal/domain/models"
)

// Fuser holds the confidence minimums and the psi magnitude gate.
type Fuser struct {
	trendMinConf  float64
	actionMinConf float64
	psiThreshold  float64
}

// NewFuser creates a fuser with the given gates.
func NewFuser(trendMinConf, actionMinConf, psiThreshold float64) *Fuser {
	return &Fuser{
		trendMinConf:  trendMinConf,
		actionMinConf: actionMinConf,
		psiThreshold:  psiThreshold,
	}
}

// Fuse derives the cycle's Decision. pos is the currently open position, nil
// when flat. Malformed classifier outputs degrade to hold, never to a trade.
func (f *Fuser) Fuse(trend, action models.ClassifierOutput, psi models.PsiReading, pos *models.Position) models.Decision {
	ts := psi.Timestamp

	if !trend.Valid(string(models.TrendBullish), string(models.TrendNeutral), string(models.TrendBearish)) {
		return models.HoldDecision(psi.Value, "malformed trend output", ts)
	}
	if !action.Valid(string(models.ActionBuy), string(models.ActionSell), string(models.ActionHold)) {
		return models.HoldDecision(psi.Value, "malformed action output", ts)
	}

	// Exit checks run first: an opposing flip above its minimum closes the
	// position regardless of psi.
	if pos != nil {
		if opposesTrend(pos.Side, trend) && trend.Confidence >= f.trendMinConf {
			return models.Decision{
				Action:     models.DecisionExit,
				Confidence: trend.Confidence,
				PsiValue:   psi.Value,
				Reason:     "trend flipped against position",
				Timestamp:  ts,
			}
		}
		if opposesAction(pos.Side, action) && action.Confidence >= f.actionMinConf {
			return models.Decision{
				Action:     models.DecisionExit,
				Confidence: action.Confidence,
				PsiValue:   psi.Value,
				Reason:     "action flipped against position",
				Timestamp:  ts,
			}
		}
	}

	side, agree := agreedSide(trend, action)
	if !agree {
		return models.HoldDecision(psi.Value, "classifiers disagree", ts)
	}
	if trend.Confidence < f.trendMinConf || action.Confidence < f.actionMinConf {
		return models.HoldDecision(psi.Value, "confidence below minimum", ts)
	}
	if math.Abs(psi.Value) < f.psiThreshold {
		return models.HoldDecision(psi.Value, "psi below threshold", ts)
	}

	conf := math.Min(trend.Confidence, action.Confidence)

	if pos == nil {
		act := models.DecisionEnterLong
		if side == models.SideShort {
			act = models.DecisionEnterShort
		}
		return models.Decision{Action: act, Confidence: conf, PsiValue: psi.Value, Reason: "classifiers agree", Timestamp: ts}
	}

	if pos.Side == side {
		// Level cap and the favorable-move rule belong to the position
		// manager; the fuser only proposes.
		return models.Decision{Action: models.DecisionAdd, Confidence: conf, PsiValue: psi.Value, Reason: "signal continues with position", Timestamp: ts}
	}

	return models.HoldDecision(psi.Value, "signal opposes position below exit confidence", ts)
}

// agreedSide maps a matching trend/action pair onto a position side.
func agreedSide(trend, action models.ClassifierOutput) (models.PositionSide, bool) {
	switch {
	case trend.Label == string(models.TrendBullish) && action.Label == string(models.ActionBuy):
		return models.SideLong, true
	case trend.Label == string(models.TrendBearish) && action.Label == string(models.ActionSell):
		return models.SideShort, true
	}
	return "", false
}

func opposesTrend(side models.PositionSide, trend models.ClassifierOutput) bool {
	if side == models.SideLong {
		return trend.Label == string(models.TrendBearish)
	}
	return trend.Label == string(models.TrendBullish)
}

func opposesAction(side models.PositionSide, action models.ClassifierOutput) bool {
	if side == models.SideLong {
		return action.Label == string(models.ActionSell)
	}
	return action.Label == string(models.ActionBuy)
}
