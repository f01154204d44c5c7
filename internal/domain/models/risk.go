package models

import "time"

// RiskState is the process-wide per-trading-day risk ledger. Once
// TradingHalted is set it is never cleared within the same day; only an
// explicit day rollover resets it.
type RiskState struct {
	Day              time.Time // UTC midnight of the trading day
	DayStartBalance  float64
	DailyRealizedPnL float64
	TradingHalted    bool
}

// NewRiskState opens a fresh ledger for the day containing now.
func NewRiskState(now time.Time, balance float64) RiskState {
	return RiskState{
		Day:             now.UTC().Truncate(24 * time.Hour),
		DayStartBalance: balance,
	}
}

// SameDay reports whether now still belongs to the ledger's trading day.
func (r RiskState) SameDay(now time.Time) bool {
	return now.UTC().Truncate(24 * time.Hour).Equal(r.Day)
}

// BreachesLimit reports whether realized losses have reached the daily limit
// expressed as a percent of the day-start balance.
func (r RiskState) BreachesLimit(maxDailyLossPercent float64) bool {
	if r.DayStartBalance <= 0 {
		return false
	}
	return r.DailyRealizedPnL <= -maxDailyLossPercent/100*r.DayStartBalance
}

// SessionStats accumulates in-memory trade statistics for the process
// lifetime. Nothing here is persisted.
type SessionStats struct {
	Trades          int
	Wins            int
	TotalPnL        float64
	TotalCommission float64
	StartBalance    float64
}

// RecordTrade folds one realized exit into the stats.
func (s *SessionStats) RecordTrade(pnl, fee float64) {
	s.Trades++
	if pnl > 0 {
		s.Wins++
	}
	s.TotalPnL += pnl
	s.TotalCommission += fee
}

// WinRate returns the fraction of winning trades, 0 with no trades.
func (s *SessionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}
