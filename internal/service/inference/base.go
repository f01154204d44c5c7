// Package inference holds the HTTP clients for the out-of-process trend and
// action classifiers. The classifiers are black boxes: the clients only carry
// the feature-vector contract and validate the returned label/confidence.
package inference

import (
	"context"
	"fmt"
	"time"

	"PsiPulse/pkg/config"
	xhttp "PsiPulse/pkg/http"
)

// httpBase centralizes client construction and JSON POST handling for both
// classifier clients.
type httpBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
}

func newHTTPBase(cfg *config.Config) *httpBase {
	timeout := cfg.Inference.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &httpBase{
		baseURL: cfg.Inference.ServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Inference.Retries,
	}
}

// postJSON posts the payload to path under baseURL and decodes JSON into dest.
func (b *httpBase) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("inference http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with a linear backoff. The
// context deadline still bounds the whole exchange.
func (b *httpBase) postJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	attempts := b.retries + 1
	if attempts <= 1 {
		return b.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// inferReq is the shared request shape for both classifiers.
type inferReq struct {
	Symbol   string    `json:"symbol"`
	Features []float64 `json:"features"`
	Names    []string  `json:"names,omitempty"`
}

// inferResp is the shared response shape for both classifiers.
type inferResp struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
