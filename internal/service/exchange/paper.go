// Package exchange provides execution backends. PaperExchange is a local
// fill simulator used in paper mode: orders fill immediately at the intent
// price adjusted for slippage, with taker fees charged on notional.
package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
)

// PaperOption configures PaperExchange.
type PaperOption func(*PaperExchange)

// PaperExchange simulates order execution against a single-instrument
// account. It is the authoritative state Reconcile reports, which makes the
// reconciliation path testable without a venue.
type PaperExchange struct {
	mu       sync.Mutex
	symbol   string
	balance  float64
	feeRate  float64 // taker fee on notional
	slippage float64 // adverse price offset as a fraction

	position float64 // signed base size, long positive
	avgEntry float64
	orderSeq int
}

// NewPaperExchange creates a simulator with the given starting balance.
func NewPaperExchange(symbol string, startBalance float64, opts ...PaperOption) *PaperExchange {
	p := &PaperExchange{
		symbol:   symbol,
		balance:  startBalance,
		feeRate:  0.0004,
		slippage: 0.0001,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithFeeRate sets the taker fee rate.
func WithFeeRate(rate float64) PaperOption {
	return func(p *PaperExchange) {
		if rate >= 0 {
			p.feeRate = rate
		}
	}
}

// WithSlippage sets the adverse slippage fraction applied to every fill.
func WithSlippage(s float64) PaperOption {
	return func(p *PaperExchange) {
		if s >= 0 {
			p.slippage = s
		}
	}
}

// Submit fills a market order immediately. Limit and stop-limit intents are
// rejected; the simulator only models the market path the strategy uses.
func (p *PaperExchange) Submit(_ context.Context, intent models.OrderIntent) (models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if intent.Symbol != p.symbol {
		return models.Fill{}, fmt.Errorf("%w: unknown symbol %s", models.ErrOrderRejected, intent.Symbol)
	}
	if intent.Type != models.OrderMarket {
		return models.Fill{}, fmt.Errorf("%w: paper exchange only fills market orders", models.ErrOrderRejected)
	}
	if intent.Size <= 0 || intent.Price <= 0 {
		return models.Fill{}, fmt.Errorf("%w: invalid size/price", models.ErrOrderRejected)
	}

	price := intent.Price
	if intent.Side == models.OrderBuy {
		price *= 1 + p.slippage
	} else {
		price *= 1 - p.slippage
	}
	fee := price * intent.Size * p.feeRate
	if p.balance < fee {
		return models.Fill{}, fmt.Errorf("%w: balance %.2f cannot cover fee %.2f", models.ErrInsufficientFunds, p.balance, fee)
	}

	p.apply(intent.Side, price, intent.Size)
	p.balance -= fee
	p.orderSeq++

	return models.Fill{
		OrderID:  fmt.Sprintf("paper-%d", p.orderSeq),
		Price:    price,
		Size:     intent.Size,
		Fee:      fee,
		FilledAt: time.Now().UTC(),
	}, nil
}

// apply folds the fill into the signed position and realizes PnL on any
// reducing portion.
func (p *PaperExchange) apply(side models.OrderSide, price, size float64) {
	delta := size
	if side == models.OrderSell {
		delta = -size
	}

	if p.position == 0 || sameSign(p.position, delta) {
		total := math.Abs(p.position) + size
		p.avgEntry = (p.avgEntry*math.Abs(p.position) + price*size) / total
		p.position += delta
		return
	}

	closed := math.Min(math.Abs(p.position), size)
	if p.position > 0 {
		p.balance += (price - p.avgEntry) * closed
	} else {
		p.balance += (p.avgEntry - price) * closed
	}
	p.position += delta
	if p.position == 0 {
		p.avgEntry = 0
	} else if sameSign(p.position, delta) {
		// The fill flipped the position; the remainder opens at fill price.
		p.avgEntry = price
	}
}

// Reconcile reports the authoritative position size and balance.
func (p *PaperExchange) Reconcile(_ context.Context, symbol string) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if symbol != p.symbol {
		return 0, 0, fmt.Errorf("unknown symbol %s", symbol)
	}
	return p.position, p.balance, nil
}

// Balance reports the current account balance.
func (p *PaperExchange) Balance(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

var (
	_ domrepo.OrderExecutor   = (*PaperExchange)(nil)
	_ domrepo.BalanceProvider = (*PaperExchange)(nil)
)
