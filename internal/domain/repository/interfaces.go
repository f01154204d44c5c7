package repository

import (
	"context"
	"time"

	"PsiPulse/internal/domain/models"
)

// CandleFeed yields closed base-resolution candles in strictly increasing
// open-time order. Implementations must surface gaps and duplicates as
// errors on the error channel, never reorder.
type CandleFeed interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Candle, <-chan error)
	Close() error
	IsConnected() bool
}

// OrderExecutor submits order intents and returns authoritative fills.
// Timeout/retry policy lives behind this interface; the core only sees a
// fill or an error. models.ErrOrderAmbiguous signals that the outcome is
// unknown and the caller must reconcile before trusting local state.
type OrderExecutor interface {
	Submit(ctx context.Context, intent models.OrderIntent) (models.Fill, error)
	// Reconcile returns the authoritative open position size (signed, long
	// positive) and current balance from the venue.
	Reconcile(ctx context.Context, symbol string) (positionSize, balance float64, err error)
}

// BalanceProvider reports the current account balance for position sizing
// and day-rollover capture.
type BalanceProvider interface {
	Balance(ctx context.Context) (float64, error)
}

// ArchiveStore records derived candles, psi readings and feature vectors for
// offline training alignment. Archiving is best-effort market-data capture;
// it never carries trade history.
type ArchiveStore interface {
	Init(ctx context.Context) error
	StoreCandle(ctx context.Context, symbol string, tf Timeframe, c models.Candle) error
	StorePsi(ctx context.Context, symbol string, r models.PsiReading) error
	StoreFeatures(ctx context.Context, symbol string, v models.FeatureVector) error
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// RiskSnapshotStore persists the daily risk ledger so a restart inside the
// same trading day cannot forget a halt.
type RiskSnapshotStore interface {
	Save(ctx context.Context, symbol string, r models.RiskState) error
	Load(ctx context.Context, symbol string, day time.Time) (models.RiskState, bool, error)
}

// Metrics is the domain metrics port.
type Metrics interface {
	RecordCycle(symbol string, seconds float64)
	RecordDecision(symbol, action string)
	RecordOrder(symbol, side, result string)
	RecordError(kind string)
	RecordPsi(symbol string, value float64)
	RecordLastPrice(symbol string, price float64)
	RecordDailyPnL(symbol string, pnl float64)
}
