package inference

import (
	"context"
	"fmt"

	"PsiPulse/internal/domain/models"
	domsvc "PsiPulse/internal/domain/service"
	"PsiPulse/pkg/config"
)

// HTTPActionClassifier calls the remote action model.
type HTTPActionClassifier struct {
	base   *httpBase
	symbol string
}

// NewHTTPActionClassifier builds the action classifier client from config.
func NewHTTPActionClassifier(cfg *config.Config) *HTTPActionClassifier {
	return &HTTPActionClassifier{base: newHTTPBase(cfg), symbol: cfg.Symbol}
}

// Infer posts the feature vector and returns the action label.
func (s *HTTPActionClassifier) Infer(ctx context.Context, v models.FeatureVector) (models.ClassifierOutput, error) {
	var resp inferResp
	err := s.base.postJSONWithRetry(ctx, "/action/infer", inferReq{Symbol: s.symbol, Features: v.Values}, &resp)
	if err != nil {
		return models.ClassifierOutput{}, fmt.Errorf("action inference: %w", err)
	}
	out := models.ClassifierOutput{Label: resp.Label, Confidence: resp.Confidence}
	if !out.Valid(string(models.ActionBuy), string(models.ActionSell), string(models.ActionHold)) {
		return models.ClassifierOutput{}, fmt.Errorf("action inference: malformed output %q/%v", resp.Label, resp.Confidence)
	}
	return out, nil
}

var _ domsvc.ActionClassifier = (*HTTPActionClassifier)(nil)
