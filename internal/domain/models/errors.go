package models

import "errors"

// Data errors. The feed pipeline rejects the offending candle and no window
// advances; these never silently reorder or dedupe input.
var (
	ErrCandleOutOfOrder = errors.New("candle out of order")
	ErrCandleDuplicate  = errors.New("duplicate candle")
	ErrCandleMalformed  = errors.New("malformed candle")
)

// Execution and risk errors.
var (
	ErrOrderRejected     = errors.New("order rejected")
	ErrOrderAmbiguous    = errors.New("order confirmation ambiguous")
	ErrTradingHalted     = errors.New("trading halted for the day")
	ErrInsufficientFunds = errors.New("insufficient balance")
)
