package exchange

import (
	"context"
	"errors"
	"math"
	"testing"

	"PsiPulse/internal/domain/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func marketOrder(side models.OrderSide, size, price float64) models.OrderIntent {
	return models.OrderIntent{
		Symbol: "BTCUSDT",
		Side:   side,
		Type:   models.OrderMarket,
		Size:   size,
		Price:  price,
	}
}

func TestSubmitFillsWithSlippageAndFee(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000, WithFeeRate(0.001), WithSlippage(0.001))

	fill, err := p.Submit(context.Background(), marketOrder(models.OrderBuy, 0.1, 50000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fill.Price != 50000*1.001 {
		t.Fatalf("buy fill price = %v, want slipped up to %v", fill.Price, 50000*1.001)
	}
	wantFee := fill.Price * 0.1 * 0.001
	if fill.Fee != wantFee {
		t.Fatalf("fee = %v, want %v", fill.Fee, wantFee)
	}

	balance, err := p.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 10000-wantFee {
		t.Fatalf("balance = %v, want fee deducted %v", balance, 10000-wantFee)
	}
}

func TestSubmitRejectsNonMarketOrders(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000)

	intent := marketOrder(models.OrderBuy, 0.1, 50000)
	intent.Type = models.OrderLimit
	_, err := p.Submit(context.Background(), intent)
	if !errors.Is(err, models.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
}

func TestRoundTripRealizesPnL(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000, WithFeeRate(0), WithSlippage(0))
	ctx := context.Background()

	if _, err := p.Submit(ctx, marketOrder(models.OrderBuy, 0.1, 50000)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := p.Submit(ctx, marketOrder(models.OrderSell, 0.1, 51000)); err != nil {
		t.Fatalf("close: %v", err)
	}

	size, balance, err := p.Reconcile(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if size != 0 {
		t.Fatalf("position after round trip = %v, want 0", size)
	}
	if !approx(balance, 10100) {
		t.Fatalf("balance = %v, want 10100 (+100 profit)", balance)
	}
}

func TestPyramidedFillsBlendAverageEntry(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000, WithFeeRate(0), WithSlippage(0))
	ctx := context.Background()

	if _, err := p.Submit(ctx, marketOrder(models.OrderBuy, 0.1, 50000)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := p.Submit(ctx, marketOrder(models.OrderBuy, 0.1, 52000)); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Close the whole position at the blended entry: PnL must be zero.
	if _, err := p.Submit(ctx, marketOrder(models.OrderSell, 0.2, 51000)); err != nil {
		t.Fatalf("close: %v", err)
	}

	size, balance, err := p.Reconcile(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if size != 0 {
		t.Fatalf("position = %v, want 0", size)
	}
	if !approx(balance, 10000) {
		t.Fatalf("balance = %v, want unchanged 10000", balance)
	}
}

func TestShortRoundTrip(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000, WithFeeRate(0), WithSlippage(0))
	ctx := context.Background()

	if _, err := p.Submit(ctx, marketOrder(models.OrderSell, 0.1, 50000)); err != nil {
		t.Fatalf("open short: %v", err)
	}
	size, _, _ := p.Reconcile(ctx, "BTCUSDT")
	if size != -0.1 {
		t.Fatalf("position = %v, want -0.1", size)
	}

	if _, err := p.Submit(ctx, marketOrder(models.OrderBuy, 0.1, 49000)); err != nil {
		t.Fatalf("cover: %v", err)
	}
	_, balance, _ := p.Reconcile(ctx, "BTCUSDT")
	if !approx(balance, 10100) {
		t.Fatalf("balance = %v, want 10100 (+100 short profit)", balance)
	}
}

func TestReconcileUnknownSymbol(t *testing.T) {
	p := NewPaperExchange("BTCUSDT", 10000)
	if _, _, err := p.Reconcile(context.Background(), "ETHUSDT"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}
