package service

import (
	"context"

	"PsiPulse/internal/domain/models"
)

// TrendClassifier infers trend direction from a feature vector. It must
// return within a bounded time or fail explicitly; stale results are never
// reused.
type TrendClassifier interface {
	Infer(ctx context.Context, v models.FeatureVector) (models.ClassifierOutput, error)
}

// ActionClassifier infers the trading action from a feature vector.
type ActionClassifier interface {
	Infer(ctx context.Context, v models.FeatureVector) (models.ClassifierOutput, error)
}
