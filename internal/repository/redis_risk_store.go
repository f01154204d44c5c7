package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/pkg/cache"
)

// Risk snapshots outlive the trading day by one day so a restart shortly
// after midnight can still observe yesterday's ledger.
const riskSnapshotTTL = 48 * time.Hour

// RedisRiskStore implements RiskSnapshotStore over the cache service. One key
// per symbol and trading day; a halt recorded here survives process restarts.
type RedisRiskStore struct {
	cache cache.Service
}

func NewRedisRiskStore(c cache.Service) *RedisRiskStore {
	return &RedisRiskStore{cache: c}
}

type riskSnapshot struct {
	Day              time.Time `json:"day"`
	DayStartBalance  float64   `json:"day_start_balance"`
	DailyRealizedPnL float64   `json:"daily_realized_pnl"`
	TradingHalted    bool      `json:"trading_halted"`
}

func riskKey(symbol string, day time.Time) string {
	return fmt.Sprintf("risk:%s:%s", symbol, day.UTC().Format("2006-01-02"))
}

func (s *RedisRiskStore) Save(ctx context.Context, symbol string, r models.RiskState) error {
	snap := riskSnapshot{
		Day:              r.Day,
		DayStartBalance:  r.DayStartBalance,
		DailyRealizedPnL: r.DailyRealizedPnL,
		TradingHalted:    r.TradingHalted,
	}
	if err := s.cache.Set(ctx, riskKey(symbol, r.Day), snap, riskSnapshotTTL); err != nil {
		return fmt.Errorf("save risk snapshot: %w", err)
	}
	return nil
}

func (s *RedisRiskStore) Load(ctx context.Context, symbol string, day time.Time) (models.RiskState, bool, error) {
	var snap riskSnapshot
	err := s.cache.Get(ctx, riskKey(symbol, day), &snap)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.RiskState{}, false, nil
		}
		return models.RiskState{}, false, fmt.Errorf("load risk snapshot: %w", err)
	}
	return models.RiskState{
		Day:              snap.Day,
		DayStartBalance:  snap.DayStartBalance,
		DailyRealizedPnL: snap.DailyRealizedPnL,
		TradingHalted:    snap.TradingHalted,
	}, true, nil
}

var _ domrepo.RiskSnapshotStore = (*RedisRiskStore)(nil)
