package models

import "time"

// PositionSide is the direction of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position is the single open position for an instrument. It is owned
// exclusively by the position manager and mutated only through its
// state-machine transitions.
type Position struct {
	Symbol        string
	Side          PositionSide
	EntryPrice    float64 // size-weighted blended entry across pyramid levels
	Size          float64
	Leverage      int
	PyramidLevel  int
	StopPrice     float64
	TakeProfit    float64
	Watermark     float64 // trailing high (long) or low (short) since entry
	LastAddPrice  float64
	OpenedAt      time.Time
	UnrealizedPnL float64
}

// UpdateUnrealized recomputes unrealized PnL against the given mark price.
func (p *Position) UpdateUnrealized(price float64) {
	if p.Side == SideLong {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Size
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Size
	}
}

// OrderSide is the direction of an order intent.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderType enumerates the supported order types.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStopLimit OrderType = "stop_limit"
)

// OrderIntent is what the core emits toward the execution collaborator.
// Price is only meaningful for limit and stop-limit orders.
type OrderIntent struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Size     float64
	Price    float64
	Leverage int
}

// Fill is an authoritative execution confirmation. Its price and size, not
// the intent's, finalize position mutation.
type Fill struct {
	OrderID  string
	Price    float64
	Size     float64
	Fee      float64
	FilledAt time.Time
}
