package usecase

import (
	"context"
	"fmt"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
)

// CandlesUseCase provides business logic for retrieving archived candles.
type CandlesUseCase struct {
	archive domrepo.ArchiveStore
}

func NewCandlesUseCase(archive domrepo.ArchiveStore) *CandlesUseCase {
	return &CandlesUseCase{archive: archive}
}

type LatestCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// LatestCandles returns up to n most recent archived candles for a timeframe,
// oldest first.
func (uc *CandlesUseCase) LatestCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (*LatestCandlesResult, error) {
	if uc.archive == nil {
		return nil, fmt.Errorf("archive disabled")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	if n <= 0 {
		n = 100
	}
	if n > 5000 {
		n = 5000
	}

	candles, err := uc.archive.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, fmt.Errorf("latest candles: %w", err)
	}
	return &LatestCandlesResult{
		Symbol:    symbol,
		Timeframe: string(tf),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
