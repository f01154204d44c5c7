package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
	"PsiPulse/pkg/config"
)

func testConfig(url string) *config.Config {
	cfg := &config.Config{Symbol: "BTCUSDT"}
	cfg.Inference.ServiceURL = url
	cfg.Inference.Timeout = 2 * time.Second
	cfg.Inference.Retries = 0
	return cfg
}

func testVector() models.FeatureVector {
	return models.FeatureVector{
		Names:  []string{"f0", "f1", "psi"},
		Values: []float64{1, 2, 0.4},
	}
}

func TestTrendInferPostsFeaturesAndParsesOutput(t *testing.T) {
	var gotPath string
	var gotReq inferReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(inferResp{Label: "bullish", Confidence: 0.82})
	}))
	defer srv.Close()

	c := NewHTTPTrendClassifier(testConfig(srv.URL))
	out, err := c.Infer(context.Background(), testVector())
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if gotPath != "/trend/infer" {
		t.Fatalf("path: got %q", gotPath)
	}
	if gotReq.Symbol != "BTCUSDT" || len(gotReq.Features) != 3 {
		t.Fatalf("request payload: %+v", gotReq)
	}
	if out.Label != string(models.TrendBullish) || out.Confidence != 0.82 {
		t.Fatalf("output: %+v", out)
	}
}

func TestActionInferRejectsUnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(inferResp{Label: "moon", Confidence: 0.9})
	}))
	defer srv.Close()

	c := NewHTTPActionClassifier(testConfig(srv.URL))
	if _, err := c.Infer(context.Background(), testVector()); err == nil {
		t.Fatalf("expected error for unknown label")
	}
}

func TestInferRejectsOutOfRangeConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(inferResp{Label: "sell", Confidence: 1.4})
	}))
	defer srv.Close()

	c := NewHTTPActionClassifier(testConfig(srv.URL))
	if _, err := c.Infer(context.Background(), testVector()); err == nil {
		t.Fatalf("expected error for confidence outside [0,1]")
	}
}

func TestInferRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(inferResp{Label: "neutral", Confidence: 0.5})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Inference.Retries = 2
	c := NewHTTPTrendClassifier(cfg)
	out, err := c.Infer(context.Background(), testVector())
	if err != nil {
		t.Fatalf("Infer after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if out.Label != string(models.TrendNeutral) {
		t.Fatalf("output label: %q", out.Label)
	}
}

func TestLocalClassifiersAreDeterministic(t *testing.T) {
	v := models.FeatureVector{
		Names:  []string{"trend_strength", "bullish_ratio", "psi"},
		Values: []float64{0.8, 0.7, 0.4},
	}

	trend := NewLocalTrendClassifier()
	action := NewLocalActionClassifier()

	tOut, err := trend.Infer(context.Background(), v)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if tOut.Label != string(models.TrendBullish) || tOut.Confidence != 0.8 {
		t.Fatalf("trend output: %+v", tOut)
	}

	aOut, err := action.Infer(context.Background(), v)
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if aOut.Label != string(models.ActionBuy) || aOut.Confidence != 0.4 {
		t.Fatalf("action output: %+v", aOut)
	}
}
