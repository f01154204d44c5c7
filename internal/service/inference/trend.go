package inference

import (
	"context"
	"fmt"

	"PsiPulse/internal/domain/models"
	domsvc "PsiPulse/internal/domain/service"
	"PsiPulse/pkg/config"
)

// HTTPTrendClassifier calls the remote trend model.
type HTTPTrendClassifier struct {
	base   *httpBase
	symbol string
}

// NewHTTPTrendClassifier builds the trend classifier client from config.
func NewHTTPTrendClassifier(cfg *config.Config) *HTTPTrendClassifier {
	return &HTTPTrendClassifier{base: newHTTPBase(cfg), symbol: cfg.Symbol}
}

// Infer posts the feature vector and returns the trend label. A malformed
// response is surfaced as an error so the cycle degrades to hold.
func (s *HTTPTrendClassifier) Infer(ctx context.Context, v models.FeatureVector) (models.ClassifierOutput, error) {
	var resp inferResp
	err := s.base.postJSONWithRetry(ctx, "/trend/infer", inferReq{Symbol: s.symbol, Features: v.Values}, &resp)
	if err != nil {
		return models.ClassifierOutput{}, fmt.Errorf("trend inference: %w", err)
	}
	out := models.ClassifierOutput{Label: resp.Label, Confidence: resp.Confidence}
	if !out.Valid(string(models.TrendBullish), string(models.TrendNeutral), string(models.TrendBearish)) {
		return models.ClassifierOutput{}, fmt.Errorf("trend inference: malformed output %q/%v", resp.Label, resp.Confidence)
	}
	return out, nil
}

var _ domsvc.TrendClassifier = (*HTTPTrendClassifier)(nil)
