// Package position implements the single-instrument position state machine:
// entry, pyramiding, the one-directional stop ratchet, take-profit, and the
// sticky daily-loss halt.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/pkg/logger"
)

// Params is the read-only trading and risk configuration for one manager.
// Percent fields are expressed in percent, not fractions.
type Params struct {
	Symbol              string
	Leverage            int
	MaxPyramidLevels    int
	PositionSizePercent float64
	MinPositionValue    float64
	PyramidMinGainPct   float64
	StopLossPercent     float64
	TakeProfitPercent   float64
	TrailingPercent     float64
	LockInPercent       float64
	MaxDailyLossPercent float64
}

// Manager owns the instrument's Position and RiskState. All mutations happen
// inside Apply under one lock, and only after a confirmed fill; a rejected
// order leaves every field untouched.
type Manager struct {
	mu        sync.Mutex
	params    Params
	executor  domrepo.OrderExecutor
	balances  domrepo.BalanceProvider
	riskStore domrepo.RiskSnapshotStore
	log       *logger.Logger
	metrics   domrepo.Metrics

	pos     *models.Position
	risk    models.RiskState
	stats   models.SessionStats
	posFees float64
	started bool
}

// NewManager wires a manager. riskStore may be nil; the halt then lives only
// in memory.
func NewManager(p Params, executor domrepo.OrderExecutor, balances domrepo.BalanceProvider, riskStore domrepo.RiskSnapshotStore, log *logger.Logger) (*Manager, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("position manager needs a symbol")
	}
	if p.Leverage < 1 {
		return nil, fmt.Errorf("leverage must be >= 1, got %d", p.Leverage)
	}
	if p.MaxPyramidLevels < 1 {
		return nil, fmt.Errorf("max pyramid levels must be >= 1, got %d", p.MaxPyramidLevels)
	}
	return &Manager{
		params:    p,
		executor:  executor,
		balances:  balances,
		riskStore: riskStore,
		log:       log,
	}, nil
}

// SetMetrics attaches an order/decision recorder. Optional.
func (m *Manager) SetMetrics(rec domrepo.Metrics) {
	m.metrics = rec
}

// Start opens the risk ledger for the day containing now. A persisted
// snapshot from earlier the same day takes precedence, so a restart cannot
// forget a halt.
func (m *Manager) Start(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, err := m.balances.Balance(ctx)
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}
	fresh := models.NewRiskState(now, balance)

	if m.riskStore != nil {
		saved, ok, err := m.riskStore.Load(ctx, m.params.Symbol, fresh.Day)
		if err != nil {
			m.log.Warn("risk snapshot load failed, starting fresh", logger.Error(err))
		} else if ok {
			fresh = saved
		}
	}

	m.risk = fresh
	m.stats.StartBalance = balance
	m.started = true
	m.log.Info("risk ledger opened",
		logger.Time("day", m.risk.Day),
		logger.Float64("day_start_balance", m.risk.DayStartBalance),
		logger.Bool("halted", m.risk.TradingHalted))
	return nil
}

// Apply runs one cycle of position management against the latest price: day
// rollover, the trailing/stop/take-profit sweep, then the fused decision.
// Everything commits or nothing does; an error means local state is unchanged
// except where reconciliation adopted authoritative venue state.
func (m *Manager) Apply(ctx context.Context, d models.Decision, price float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("manager not started")
	}
	if price <= 0 {
		return fmt.Errorf("non-positive price %v", price)
	}

	if err := m.rollover(ctx, now); err != nil {
		return err
	}

	if m.pos != nil {
		m.ratchet(price)
		if exited, err := m.sweepExits(ctx, price, now); err != nil || exited {
			return err
		}
	}

	if m.risk.TradingHalted {
		if m.pos != nil {
			return m.exit(ctx, price, now, "trading halted")
		}
		if d.Action == models.DecisionEnterLong || d.Action == models.DecisionEnterShort || d.Action == models.DecisionAdd {
			return models.ErrTradingHalted
		}
		return nil
	}

	switch d.Action {
	case models.DecisionEnterLong:
		return m.enter(ctx, models.SideLong, price, now)
	case models.DecisionEnterShort:
		return m.enter(ctx, models.SideShort, price, now)
	case models.DecisionAdd:
		return m.add(ctx, price, now)
	case models.DecisionExit:
		if m.pos == nil {
			return nil
		}
		return m.exit(ctx, price, now, d.Reason)
	case models.DecisionHold:
		return nil
	default:
		return fmt.Errorf("unknown decision action %q", d.Action)
	}
}

// rollover opens a new risk ledger when now crosses the UTC day boundary.
// The halt does not carry over; it is terminal for the day, not globally.
func (m *Manager) rollover(ctx context.Context, now time.Time) error {
	if m.risk.SameDay(now) {
		return nil
	}
	balance, err := m.balances.Balance(ctx)
	if err != nil {
		return fmt.Errorf("day rollover balance query: %w", err)
	}
	m.risk = models.NewRiskState(now, balance)
	m.persistRisk(ctx)
	m.log.Info("trading day rolled over",
		logger.Time("day", m.risk.Day),
		logger.Float64("day_start_balance", balance))
	return nil
}

// ratchet advances the watermark and tightens the stop. The stop only ever
// moves toward the market, and once unrealized gain reaches the lock-in
// threshold it is pinned at no worse than breakeven.
func (m *Manager) ratchet(price float64) {
	p := m.pos
	trail := m.params.TrailingPercent / 100
	lockIn := m.params.LockInPercent / 100

	if p.Side == models.SideLong {
		if price > p.Watermark {
			p.Watermark = price
		}
		candidate := p.Watermark * (1 - trail)
		if lockIn > 0 && price >= p.EntryPrice*(1+lockIn) && candidate < p.EntryPrice {
			candidate = p.EntryPrice
		}
		if candidate > p.StopPrice {
			p.StopPrice = candidate
		}
	} else {
		if price < p.Watermark {
			p.Watermark = price
		}
		candidate := p.Watermark * (1 + trail)
		if lockIn > 0 && price <= p.EntryPrice*(1-lockIn) && candidate > p.EntryPrice {
			candidate = p.EntryPrice
		}
		if candidate < p.StopPrice {
			p.StopPrice = candidate
		}
	}
	p.UpdateUnrealized(price)
}

// sweepExits closes the position when price has breached the stop or reached
// take-profit. Returns true when an exit was executed.
func (m *Manager) sweepExits(ctx context.Context, price float64, now time.Time) (bool, error) {
	p := m.pos
	var reason string
	if p.Side == models.SideLong {
		switch {
		case price <= p.StopPrice:
			reason = "stop hit"
		case p.TakeProfit > 0 && price >= p.TakeProfit:
			reason = "take profit"
		}
	} else {
		switch {
		case price >= p.StopPrice:
			reason = "stop hit"
		case p.TakeProfit > 0 && price <= p.TakeProfit:
			reason = "take profit"
		}
	}
	if reason == "" {
		return false, nil
	}
	return true, m.exit(ctx, price, now, reason)
}

func (m *Manager) enter(ctx context.Context, side models.PositionSide, price float64, now time.Time) error {
	if m.pos != nil {
		return nil
	}

	size, err := m.sizeFor(ctx, price)
	if err != nil {
		return err
	}

	fill, err := m.submit(ctx, orderSideFor(side, false), size, price)
	if err != nil {
		if errors.Is(err, models.ErrOrderAmbiguous) {
			return m.reconcileEntry(ctx, side, price, now)
		}
		return err
	}
	m.commitEntry(side, fill, now)
	return nil
}

func (m *Manager) commitEntry(side models.PositionSide, fill models.Fill, now time.Time) {
	sl := m.params.StopLossPercent / 100
	tp := m.params.TakeProfitPercent / 100

	pos := &models.Position{
		Symbol:       m.params.Symbol,
		Side:         side,
		EntryPrice:   fill.Price,
		Size:         fill.Size,
		Leverage:     m.params.Leverage,
		PyramidLevel: 1,
		Watermark:    fill.Price,
		LastAddPrice: fill.Price,
		OpenedAt:     now,
	}
	if side == models.SideLong {
		pos.StopPrice = fill.Price * (1 - sl)
		pos.TakeProfit = fill.Price * (1 + tp)
	} else {
		pos.StopPrice = fill.Price * (1 + sl)
		pos.TakeProfit = fill.Price * (1 - tp)
	}
	m.pos = pos
	m.posFees = fill.Fee

	m.log.Info("position opened",
		logger.String("side", string(side)),
		logger.Float64("entry", fill.Price),
		logger.Float64("size", fill.Size),
		logger.Float64("stop", pos.StopPrice),
		logger.Float64("take_profit", pos.TakeProfit))
}

func (m *Manager) add(ctx context.Context, price float64, now time.Time) error {
	p := m.pos
	if p == nil {
		return nil
	}
	if p.PyramidLevel >= m.params.MaxPyramidLevels {
		return nil
	}
	if !m.movedFavorably(price) {
		return nil
	}

	size, err := m.sizeFor(ctx, price)
	if err != nil {
		return err
	}

	fill, err := m.submit(ctx, orderSideFor(p.Side, false), size, price)
	if err != nil {
		if errors.Is(err, models.ErrOrderAmbiguous) {
			return m.reconcileAdd(ctx, price, now)
		}
		return err
	}
	m.commitAdd(fill)
	return nil
}

func (m *Manager) commitAdd(fill models.Fill) {
	p := m.pos
	total := p.Size + fill.Size
	blended := (p.EntryPrice*p.Size + fill.Price*fill.Size) / total
	p.EntryPrice = blended
	p.Size = total
	p.PyramidLevel++
	p.LastAddPrice = fill.Price
	m.posFees += fill.Fee

	// Stop and target re-derive from the blended entry, but the stop only
	// ever tightens relative to what the ratchet already secured.
	sl := m.params.StopLossPercent / 100
	tp := m.params.TakeProfitPercent / 100
	if p.Side == models.SideLong {
		if candidate := blended * (1 - sl); candidate > p.StopPrice {
			p.StopPrice = candidate
		}
		p.TakeProfit = blended * (1 + tp)
	} else {
		if candidate := blended * (1 + sl); candidate < p.StopPrice {
			p.StopPrice = candidate
		}
		p.TakeProfit = blended * (1 - tp)
	}

	m.log.Info("position pyramided",
		logger.Int("level", p.PyramidLevel),
		logger.Float64("blended_entry", blended),
		logger.Float64("size", p.Size),
		logger.Float64("stop", p.StopPrice))
}

// movedFavorably gates pyramiding on price having advanced since the last
// add by at least the configured gain.
func (m *Manager) movedFavorably(price float64) bool {
	gain := m.params.PyramidMinGainPct / 100
	if m.pos.Side == models.SideLong {
		return price >= m.pos.LastAddPrice*(1+gain)
	}
	return price <= m.pos.LastAddPrice*(1-gain)
}

func (m *Manager) exit(ctx context.Context, price float64, now time.Time, reason string) error {
	p := m.pos
	fill, err := m.submit(ctx, orderSideFor(p.Side, true), p.Size, price)
	if err != nil {
		if errors.Is(err, models.ErrOrderAmbiguous) {
			return m.reconcileExit(ctx, price, now, reason)
		}
		return err
	}
	m.commitExit(ctx, fill, now, reason)
	return nil
}

func (m *Manager) commitExit(ctx context.Context, fill models.Fill, now time.Time, reason string) {
	p := m.pos
	var pnl float64
	if p.Side == models.SideLong {
		pnl = (fill.Price - p.EntryPrice) * p.Size
	} else {
		pnl = (p.EntryPrice - fill.Price) * p.Size
	}
	fees := m.posFees + fill.Fee
	pnl -= fees

	m.risk.DailyRealizedPnL += pnl
	m.stats.RecordTrade(pnl, fees)
	m.pos = nil
	m.posFees = 0

	m.log.Info("position closed",
		logger.String("reason", reason),
		logger.Float64("exit", fill.Price),
		logger.Float64("pnl", pnl),
		logger.Float64("daily_pnl", m.risk.DailyRealizedPnL))

	m.enforceDailyLimit(ctx)
	m.persistRisk(ctx)
}

// enforceDailyLimit flips the sticky halt when realized losses reach the
// daily limit. Loss events get their own log signature so operators can
// alert on them apart from ordinary exits.
func (m *Manager) enforceDailyLimit(ctx context.Context) {
	if m.risk.TradingHalted || !m.risk.BreachesLimit(m.params.MaxDailyLossPercent) {
		return
	}
	m.risk.TradingHalted = true
	m.log.Error("daily loss limit breached, trading halted until day rollover",
		logger.Float64("daily_pnl", m.risk.DailyRealizedPnL),
		logger.Float64("day_start_balance", m.risk.DayStartBalance),
		logger.Float64("limit_percent", m.params.MaxDailyLossPercent))
}

// sizeFor computes the order size for one pyramid level from live balance.
func (m *Manager) sizeFor(ctx context.Context, price float64) (float64, error) {
	balance, err := m.balances.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	notional := m.params.PositionSizePercent / 100 * balance * float64(m.params.Leverage)
	if notional < m.params.MinPositionValue {
		return 0, fmt.Errorf("%w: notional %.2f below minimum %.2f", models.ErrInsufficientFunds, notional, m.params.MinPositionValue)
	}
	return notional / price, nil
}

func (m *Manager) submit(ctx context.Context, side models.OrderSide, size, price float64) (models.Fill, error) {
	intent := models.OrderIntent{
		Symbol:   m.params.Symbol,
		Side:     side,
		Type:     models.OrderMarket,
		Size:     size,
		Price:    price,
		Leverage: m.params.Leverage,
	}
	fill, err := m.executor.Submit(ctx, intent)
	if m.metrics != nil {
		result := "filled"
		switch {
		case errors.Is(err, models.ErrOrderAmbiguous):
			result = "ambiguous"
		case err != nil:
			result = "rejected"
		}
		m.metrics.RecordOrder(m.params.Symbol, string(side), result)
	}
	return fill, err
}

// reconcileEntry resolves an ambiguous entry confirmation against venue
// state. If the venue shows an open position, it is adopted with the current
// price standing in for the unknown fill price.
func (m *Manager) reconcileEntry(ctx context.Context, side models.PositionSide, price float64, now time.Time) error {
	venueSize, _, err := m.executor.Reconcile(ctx, m.params.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile after ambiguous entry: %w", err)
	}
	size := math.Abs(venueSize)
	if size == 0 {
		m.log.Warn("ambiguous entry did not execute, state unchanged")
		return nil
	}
	m.commitEntry(side, models.Fill{Price: price, Size: size, FilledAt: now}, now)
	m.log.Warn("ambiguous entry adopted from venue state", logger.Float64("size", size))
	return nil
}

func (m *Manager) reconcileAdd(ctx context.Context, price float64, now time.Time) error {
	venueSize, _, err := m.executor.Reconcile(ctx, m.params.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile after ambiguous add: %w", err)
	}
	size := math.Abs(venueSize)
	if delta := size - m.pos.Size; delta > 0 {
		m.commitAdd(models.Fill{Price: price, Size: delta, FilledAt: now})
		m.log.Warn("ambiguous add adopted from venue state", logger.Float64("delta", delta))
	} else {
		m.log.Warn("ambiguous add did not execute, state unchanged")
	}
	return nil
}

func (m *Manager) reconcileExit(ctx context.Context, price float64, now time.Time, reason string) error {
	venueSize, _, err := m.executor.Reconcile(ctx, m.params.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile after ambiguous exit: %w", err)
	}
	if math.Abs(venueSize) == 0 {
		m.commitExit(ctx, models.Fill{Price: price, Size: m.pos.Size, FilledAt: now}, now, reason+" (reconciled)")
		return nil
	}
	m.log.Warn("ambiguous exit did not execute, position still open on venue")
	return nil
}

func (m *Manager) persistRisk(ctx context.Context) {
	if m.riskStore == nil {
		return
	}
	if err := m.riskStore.Save(ctx, m.params.Symbol, m.risk); err != nil {
		m.log.Warn("risk snapshot save failed", logger.Error(err))
	}
}

// Position returns a copy of the open position, nil when flat.
func (m *Manager) Position() *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return nil
	}
	cp := *m.pos
	return &cp
}

// Risk returns the current risk ledger.
func (m *Manager) Risk() models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk
}

// Stats returns the session trade statistics.
func (m *Manager) Stats() models.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Halted reports whether the daily-loss halt is in effect.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk.TradingHalted
}

func orderSideFor(side models.PositionSide, closing bool) models.OrderSide {
	long := side == models.SideLong
	if closing {
		long = !long
	}
	if long {
		return models.OrderBuy
	}
	return models.OrderSell
}
