// Package api exposes the read-only operational HTTP surface: live engine
// state, the current position and risk ledger, and archived candles.
package api

import (
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/internal/usecase"
	xhttp "PsiPulse/pkg/http"
	xlogger "PsiPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusHandler implements Echo-based HTTP handlers over the engine.
type StatusHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.Engine
	candles *usecase.CandlesUseCase
}

func NewStatusHandler(logger *xlogger.Logger, engine *usecase.Engine, candles *usecase.CandlesUseCase) *StatusHandler {
	return &StatusHandler{logger: logger, engine: engine, candles: candles}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/position", h.Position)
	g.GET("/psi", h.Psi)
	g.GET("/decision", h.Decision)
	g.GET("/candles", h.Candles)
}

type statusResponse struct {
	Symbol           string  `json:"symbol"`
	Cycles           int64   `json:"cycles"`
	LastPrice        float64 `json:"last_price"`
	Halted           bool    `json:"halted"`
	DayStartBalance  float64 `json:"day_start_balance"`
	DailyRealizedPnL float64 `json:"daily_realized_pnl"`
	Trades           int     `json:"trades"`
	Wins             int     `json:"wins"`
	WinRate          float64 `json:"win_rate"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalCommission  float64 `json:"total_commission"`
}

func (h *StatusHandler) Status(c echo.Context) error {
	risk := h.engine.Risk()
	stats := h.engine.Stats()
	return xhttp.SuccessResponse(c, statusResponse{
		Symbol:           h.engine.Symbol(),
		Cycles:           h.engine.Cycles(),
		LastPrice:        h.engine.LastPrice(),
		Halted:           risk.TradingHalted,
		DayStartBalance:  risk.DayStartBalance,
		DailyRealizedPnL: risk.DailyRealizedPnL,
		Trades:           stats.Trades,
		Wins:             stats.Wins,
		WinRate:          stats.WinRate(),
		TotalPnL:         stats.TotalPnL,
		TotalCommission:  stats.TotalCommission,
	})
}

func (h *StatusHandler) Position(c echo.Context) error {
	pos := h.engine.Position()
	if pos == nil {
		return xhttp.NotFoundResponse(c, map[string]string{"message": "no open position"})
	}
	return xhttp.SuccessResponse(c, pos)
}

type psiResponse struct {
	Value         float64 `json:"value"`
	Direction     string  `json:"direction"`
	SwingDetected bool    `json:"swing_detected"`
	Timestamp     string  `json:"timestamp"`
}

func (h *StatusHandler) Psi(c echo.Context) error {
	r := h.engine.LastPsi()
	return xhttp.SuccessResponse(c, psiResponse{
		Value:         r.Value,
		Direction:     string(r.Direction),
		SwingDetected: r.SwingDetected,
		Timestamp:     r.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type decisionResponse struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Psi        float64 `json:"psi"`
	Reason     string  `json:"reason"`
	Timestamp  string  `json:"timestamp"`
}

func (h *StatusHandler) Decision(c echo.Context) error {
	d := h.engine.LastDecision()
	return xhttp.SuccessResponse(c, decisionResponse{
		Action:     string(d.Action),
		Confidence: d.Confidence,
		Psi:        d.PsiValue,
		Reason:     d.Reason,
		Timestamp:  d.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type candlesRequest struct {
	TF string `query:"tf" default:"1m"`
	N  int    `query:"n" default:"100" validate:"omitempty,min=1,max=5000"`
}

func (h *StatusHandler) Candles(c echo.Context) error {
	req := &candlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.candles.LatestCandles(c.Request().Context(), h.engine.Symbol(), req.N, domrepo.Timeframe(req.TF))
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
