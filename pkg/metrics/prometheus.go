package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	cycleDuration *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	orders        *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	psiValue      *prometheus.GaugeVec
	lastPrice     *prometheus.GaugeVec
	dailyPnL      *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "psipulse_cycle_duration_seconds",
				Help:    "Duration of one full trading cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psipulse_decisions_total",
				Help: "Fused decisions by action",
			},
			[]string{"symbol", "action"},
		),
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psipulse_orders_total",
				Help: "Order submissions by side and result",
			},
			[]string{"symbol", "side", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psipulse_errors_total",
				Help: "Errors encountered by kind",
			},
			[]string{"type"},
		),
		psiValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psipulse_psi_value",
				Help: "Latest psi-frequency reading",
			},
			[]string{"symbol"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psipulse_last_price",
				Help: "Last observed close price",
			},
			[]string{"symbol"},
		),
		dailyPnL: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psipulse_daily_realized_pnl",
				Help: "Realized PnL for the current trading day",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordCycle(symbol string, seconds float64) {
	r.cycleDuration.WithLabelValues(symbol).Observe(seconds)
}

func (r *Recorder) RecordDecision(symbol, action string) {
	r.decisions.WithLabelValues(symbol, action).Inc()
}

func (r *Recorder) RecordOrder(symbol, side, result string) {
	r.orders.WithLabelValues(symbol, side, result).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordPsi(symbol string, value float64) {
	r.psiValue.WithLabelValues(symbol).Set(value)
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordDailyPnL(symbol string, pnl float64) {
	r.dailyPnL.WithLabelValues(symbol).Set(pnl)
}
