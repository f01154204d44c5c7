// Package usecase wires the per-candle trading cycle: ingest, aggregate,
// psi, features, inference, fusion, position management.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	domsvc "PsiPulse/internal/domain/service"
	"PsiPulse/internal/service/audit"
	"PsiPulse/internal/services/features"
	"PsiPulse/internal/services/fuse"
	"PsiPulse/internal/services/market"
	"PsiPulse/internal/services/position"
	"PsiPulse/internal/services/psi"
	"PsiPulse/pkg/logger"
)

// archiveTimeout bounds best-effort archive writes so a slow store can never
// stall the trading cycle.
const archiveTimeout = 2 * time.Second

// AuditSink receives one decision record per completed cycle.
type AuditSink interface {
	Publish(ctx context.Context, r audit.DecisionRecord) error
}

// Deps collects the engine's collaborators. Archive, Sink and Metrics are
// optional; everything else is required.
type Deps struct {
	Symbol        string
	RecentCandles int

	Store     *market.CandleStore
	Agg       *market.Aggregator
	Psi       *psi.Engine
	Assembler *features.Assembler
	Trend     domsvc.TrendClassifier
	Action    domsvc.ActionClassifier
	Fuser     *fuse.Fuser
	Manager   *position.Manager

	Archive domrepo.ArchiveStore
	Sink    AuditSink
	Metrics domrepo.Metrics
	Log     *logger.Logger
}

// Engine drives one full decision cycle per closed base candle. A cycle is
// atomic: once a candle is accepted every stage runs to completion before the
// next candle is considered, so shutdown can only fall between cycles.
type Engine struct {
	deps     Deps
	baseTF   domrepo.Timeframe
	interval time.Duration

	mu           sync.RWMutex
	lastReading  models.PsiReading
	lastDecision models.Decision
	lastPrice    float64
	cycles       int64
}

// NewEngine validates deps and builds the engine.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if deps.Store == nil || deps.Agg == nil || deps.Psi == nil || deps.Assembler == nil {
		return nil, fmt.Errorf("market pipeline deps are required")
	}
	if deps.Trend == nil || deps.Action == nil || deps.Fuser == nil || deps.Manager == nil {
		return nil, fmt.Errorf("decision pipeline deps are required")
	}
	if deps.RecentCandles <= 0 {
		return nil, fmt.Errorf("recent candles must be positive")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	baseTF := deps.Agg.Timeframes()[0]
	interval, err := baseTF.Duration()
	if err != nil {
		return nil, err
	}
	return &Engine{deps: deps, baseTF: baseTF, interval: interval}, nil
}

// ProcessCandle runs one decision cycle for a newly closed base candle.
// Malformed, duplicate or out-of-order candles are rejected before any state
// advances. Inference failure degrades the cycle to a hold; it never aborts.
func (e *Engine) ProcessCandle(ctx context.Context, c models.Candle) (models.Decision, error) {
	start := time.Now()
	d := &e.deps

	if err := d.Store.Append(c); err != nil {
		e.recordError("candle")
		return models.Decision{}, err
	}

	events := d.Agg.Add(c)
	reading := d.Psi.Observe(c)
	closeTime := c.OpenTime.Add(e.interval)

	e.archiveMarketData(c, events, reading)
	if d.Metrics != nil {
		d.Metrics.RecordPsi(d.Symbol, reading.Value)
		d.Metrics.RecordLastPrice(d.Symbol, c.Close)
	}

	decision := e.decide(ctx, reading, closeTime)

	if err := d.Manager.Apply(ctx, decision, c.Close, closeTime); err != nil {
		switch {
		case errors.Is(err, models.ErrTradingHalted):
			d.Log.Info("decision suppressed, trading halted",
				logger.String("action", string(decision.Action)))
		case errors.Is(err, models.ErrInsufficientFunds):
			d.Log.Warn("decision skipped", logger.Error(err))
		default:
			e.recordError("position")
			d.Log.Error("position update failed",
				logger.String("action", string(decision.Action)),
				logger.Error(err))
		}
	}

	e.publishAudit(decision, c.Close)

	if d.Metrics != nil {
		d.Metrics.RecordDecision(d.Symbol, string(decision.Action))
		d.Metrics.RecordDailyPnL(d.Symbol, d.Manager.Risk().DailyRealizedPnL)
		d.Metrics.RecordCycle(d.Symbol, time.Since(start).Seconds())
	}

	e.mu.Lock()
	e.lastReading = reading
	e.lastDecision = decision
	e.lastPrice = c.Close
	e.cycles++
	e.mu.Unlock()

	return decision, nil
}

// decide assembles features, queries both classifiers and fuses the result.
// Either classifier failing yields a hold for this cycle.
func (e *Engine) decide(ctx context.Context, reading models.PsiReading, at time.Time) models.Decision {
	d := &e.deps

	candles := d.Store.Recent(d.RecentCandles)
	stats := d.Agg.StatsFor(e.baseTF)
	vector := d.Assembler.Assemble(candles, stats, reading.Value)

	trendOut, err := d.Trend.Infer(ctx, vector)
	if err != nil {
		e.recordError("inference_trend")
		d.Log.Warn("trend inference failed", logger.Error(err))
		return models.HoldDecision(reading.Value, "trend inference unavailable", at)
	}
	actionOut, err := d.Action.Infer(ctx, vector)
	if err != nil {
		e.recordError("inference_action")
		d.Log.Warn("action inference failed", logger.Error(err))
		return models.HoldDecision(reading.Value, "action inference unavailable", at)
	}

	e.archiveFeatures(vector)
	return d.Fuser.Fuse(trendOut, actionOut, reading, d.Manager.Position())
}

// archiveMarketData persists the base candle, any derived candles that closed
// this cycle, and the psi reading. Failures are logged and swallowed.
func (e *Engine) archiveMarketData(c models.Candle, events []market.ClosedCandle, reading models.PsiReading) {
	d := &e.deps
	if d.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := d.Archive.StoreCandle(ctx, d.Symbol, e.baseTF, c); err != nil {
		e.recordError("archive")
		d.Log.Warn("candle archive failed", logger.Error(err))
	}
	for _, ev := range events {
		if ev.Timeframe == e.baseTF {
			continue
		}
		if err := d.Archive.StoreCandle(ctx, d.Symbol, ev.Timeframe, ev.Candle); err != nil {
			e.recordError("archive")
			d.Log.Warn("derived candle archive failed",
				logger.String("tf", string(ev.Timeframe)),
				logger.Error(err))
		}
	}
	if err := d.Archive.StorePsi(ctx, d.Symbol, reading); err != nil {
		e.recordError("archive")
		d.Log.Warn("psi archive failed", logger.Error(err))
	}
}

func (e *Engine) archiveFeatures(v models.FeatureVector) {
	d := &e.deps
	if d.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := d.Archive.StoreFeatures(ctx, d.Symbol, v); err != nil {
		e.recordError("archive")
		d.Log.Warn("feature archive failed", logger.Error(err))
	}
}

func (e *Engine) publishAudit(decision models.Decision, price float64) {
	d := &e.deps
	if d.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	r := audit.RecordFor(d.Symbol, decision, price, d.Manager.Position(), d.Manager.Halted())
	if err := d.Sink.Publish(ctx, r); err != nil {
		e.recordError("audit")
		d.Log.Warn("decision audit publish failed", logger.Error(err))
	}
}

func (e *Engine) recordError(kind string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordError(kind)
	}
}

// Symbol returns the traded instrument.
func (e *Engine) Symbol() string { return e.deps.Symbol }

// LastPsi returns the most recent psi reading.
func (e *Engine) LastPsi() models.PsiReading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReading
}

// LastDecision returns the most recent fused decision.
func (e *Engine) LastDecision() models.Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDecision
}

// LastPrice returns the most recent base candle close.
func (e *Engine) LastPrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice
}

// Cycles returns the number of completed cycles.
func (e *Engine) Cycles() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycles
}

// Position returns the current open position, nil when flat.
func (e *Engine) Position() *models.Position { return e.deps.Manager.Position() }

// Risk returns the current daily risk ledger.
func (e *Engine) Risk() models.RiskState { return e.deps.Manager.Risk() }

// Stats returns the in-memory session statistics.
func (e *Engine) Stats() models.SessionStats { return e.deps.Manager.Stats() }
