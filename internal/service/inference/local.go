package inference

import (
	"context"
	"fmt"
	"math"

	"PsiPulse/internal/domain/models"
	domsvc "PsiPulse/internal/domain/service"
)

// Local classifiers are deterministic heuristic stand-ins used in paper mode
// when no inference service is configured. They read the same feature vector
// as the remote models, so the rest of the cycle is identical.

// LocalTrendClassifier labels the trend from the trend-strength feature.
type LocalTrendClassifier struct{}

func NewLocalTrendClassifier() *LocalTrendClassifier { return &LocalTrendClassifier{} }

func (s *LocalTrendClassifier) Infer(_ context.Context, v models.FeatureVector) (models.ClassifierOutput, error) {
	strength, err := featureByName(v, "trend_strength")
	if err != nil {
		return models.ClassifierOutput{}, err
	}

	label := models.TrendNeutral
	switch {
	case strength > 0.3:
		label = models.TrendBullish
	case strength < -0.3:
		label = models.TrendBearish
	}
	return models.ClassifierOutput{Label: string(label), Confidence: clamp01(math.Abs(strength))}, nil
}

// LocalActionClassifier labels the action from psi and the bullish ratio.
type LocalActionClassifier struct{}

func NewLocalActionClassifier() *LocalActionClassifier { return &LocalActionClassifier{} }

func (s *LocalActionClassifier) Infer(_ context.Context, v models.FeatureVector) (models.ClassifierOutput, error) {
	psi, err := featureByName(v, "psi")
	if err != nil {
		return models.ClassifierOutput{}, err
	}
	ratio, err := featureByName(v, "bullish_ratio")
	if err != nil {
		return models.ClassifierOutput{}, err
	}

	label := models.ActionHold
	switch {
	case psi > 0 && ratio > 0.5:
		label = models.ActionBuy
	case psi < 0 && ratio < 0.5:
		label = models.ActionSell
	}
	return models.ClassifierOutput{Label: string(label), Confidence: clamp01(math.Abs(psi))}, nil
}

func featureByName(v models.FeatureVector, name string) (float64, error) {
	for i, n := range v.Names {
		if n == name {
			if i >= len(v.Values) {
				break
			}
			return v.Values[i], nil
		}
	}
	return 0, fmt.Errorf("feature %q missing from vector", name)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

var (
	_ domsvc.TrendClassifier  = (*LocalTrendClassifier)(nil)
	_ domsvc.ActionClassifier = (*LocalActionClassifier)(nil)
)
